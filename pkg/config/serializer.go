package config

import (
	"encoding/json"

	"gopkg.in/yaml.v2"
)

// Serializer 定义序列化/反序列化接口
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Exts() []string // 识别的文件扩展名
	Name() string
}

// YAMLSerializer YAML序列化实现
type YAMLSerializer struct{}

func (YAMLSerializer) Marshal(v interface{}) ([]byte, error)      { return yaml.Marshal(v) }
func (YAMLSerializer) Unmarshal(data []byte, v interface{}) error { return yaml.Unmarshal(data, v) }
func (YAMLSerializer) Exts() []string                             { return []string{".yml", ".yaml"} }
func (YAMLSerializer) Name() string                               { return "yaml" }

// JSONSerializer JSON序列化实现
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v interface{}) ([]byte, error)      { return json.MarshalIndent(v, "", "  ") }
func (JSONSerializer) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (JSONSerializer) Exts() []string                             { return []string{".json"} }
func (JSONSerializer) Name() string                               { return "json" }

// serializerFor 按扩展名选择，未识别时返回fallback
func serializerFor(ext string, formats []Serializer, fallback Serializer) Serializer {
	for _, f := range formats {
		for _, e := range f.Exts() {
			if e == ext {
				return f
			}
		}
	}
	return fallback
}
