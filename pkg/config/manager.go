package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/junbin-yang/go-simplefsm/pkg/logger"
)

// ConfigManager 通用配置管理器
type ConfigManager struct {
	mu          sync.RWMutex
	instance    interface{} // 配置实例（指针）
	configPath  string
	serializer  Serializer // 当前序列化器
	forceFormat Serializer // 强制格式（优先级最高）
	formats     []Serializer
	loaded      bool

	enableWatch           bool
	watchDebounceInterval time.Duration
	watcher               *fsnotify.Watcher
	watchQuit             chan struct{}
	watchDone             chan struct{}
	closeOnce             sync.Once

	callbacks []func(old, new interface{})
	log       *logger.Logger
}

// NewConfigManager 创建配置管理器，cfg必须为结构体指针
func NewConfigManager(cfg interface{}, options ...Option) *ConfigManager {
	if cfg == nil {
		panic("config instance cannot be nil")
	}
	if reflect.ValueOf(cfg).Kind() != reflect.Ptr {
		panic("config instance must be a pointer")
	}

	cm := &ConfigManager{
		instance:   cfg,
		serializer: YAMLSerializer{},
		formats:    []Serializer{YAMLSerializer{}, JSONSerializer{}},
		watchQuit:  make(chan struct{}),
		log:        logger.Default(),
	}
	for _, opt := range options {
		opt(cm)
	}
	return cm
}

// LoadConfig 加载配置文件，只能调用一次
func (cm *ConfigManager) LoadConfig(path string) error {
	cm.mu.Lock()
	if cm.loaded {
		cm.mu.Unlock()
		return errors.New("config already loaded")
	}
	if err := validateConfigPath(path); err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("invalid config path: %w", err)
	}

	cm.configPath = path
	cm.chooseSerializer(path)
	if err := cm.decodeInto(cm.instance); err != nil {
		cm.mu.Unlock()
		return err
	}
	cm.loaded = true
	watch := cm.enableWatch
	cm.mu.Unlock()

	if watch {
		return cm.startWatch()
	}
	return nil
}

// GetConfig 获取当前配置实例
func (cm *ConfigManager) GetConfig() (interface{}, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.loaded {
		return nil, errors.New("config not loaded, call LoadConfig first")
	}
	return cm.instance, nil
}

// Path 返回已加载的配置文件路径
func (cm *ConfigManager) Path() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// SaveConfig 将当前配置写回文件（先写临时文件再替换）
func (cm *ConfigManager) SaveConfig() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.loaded {
		return errors.New("config not loaded")
	}

	data, err := cm.serializer.Marshal(cm.instance)
	if err != nil {
		return fmt.Errorf("marshal config failed: %w", err)
	}

	tmpPath := cm.configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp config failed: %w", err)
	}
	if err := os.Rename(tmpPath, cm.configPath); err != nil {
		return fmt.Errorf("rename temp config failed: %w", err)
	}
	return nil
}

// ReloadConfig 重新读取配置文件，成功后替换实例并触发回调
func (cm *ConfigManager) ReloadConfig() error {
	cm.mu.Lock()
	if !cm.loaded {
		cm.mu.Unlock()
		return errors.New("config not loaded")
	}

	newInstance := reflect.New(reflect.ValueOf(cm.instance).Elem().Type()).Interface()
	if err := cm.decodeInto(newInstance); err != nil {
		cm.mu.Unlock()
		return err
	}

	oldInstance := cm.instance
	cm.instance = newInstance

	callbacks := make([]func(old, new interface{}), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	// 回调在锁外执行
	for _, callback := range callbacks {
		callback(oldInstance, newInstance)
	}
	return nil
}

// OnChange 注册配置变更回调
func (cm *ConfigManager) OnChange(callback func(old, new interface{})) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, callback)
}

// Close 停止监听
func (cm *ConfigManager) Close() error {
	var err error
	cm.closeOnce.Do(func() {
		close(cm.watchQuit)

		cm.mu.Lock()
		w, done := cm.watcher, cm.watchDone
		cm.watcher = nil
		cm.mu.Unlock()

		if w != nil {
			err = w.Close()
			<-done
		}
	})
	return err
}

/* ------------------------------ 内部方法 ------------------------------ */

func (cm *ConfigManager) chooseSerializer(path string) {
	if cm.forceFormat != nil {
		cm.serializer = cm.forceFormat
		return
	}
	cm.serializer = serializerFor(filepath.Ext(path), cm.formats, cm.serializer)
}

// decodeInto 解析文件并应用环境变量，调用方持有锁
func (cm *ConfigManager) decodeInto(v interface{}) error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := cm.serializer.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal failed (%s): %w", cm.serializer.Name(), err)
	}
	if err := applyEnvOverrides(v); err != nil {
		return fmt.Errorf("apply env overrides failed: %w", err)
	}
	return nil
}

// startWatch 监听配置文件所在目录，编辑器的重命名写入也能捕获
func (cm *ConfigManager) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher failed: %w", err)
	}

	cm.mu.Lock()
	path := cm.configPath
	if err := w.Add(filepath.Dir(path)); err != nil {
		cm.mu.Unlock()
		_ = w.Close()
		return fmt.Errorf("add watch path failed: %w", err)
	}
	cm.watcher = w
	cm.watchDone = make(chan struct{})
	cm.mu.Unlock()

	go cm.watchLoop(w, filepath.Clean(path))
	return nil
}

func (cm *ConfigManager) watchLoop(w *fsnotify.Watcher, path string) {
	defer close(cm.watchDone)

	debounce := time.NewTimer(cm.watchDebounceInterval)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce.Reset(cm.watchDebounceInterval)
			}

		case <-debounce.C:
			if err := cm.ReloadConfig(); err != nil {
				cm.log.Warn("config auto reload failed", logger.String("path", path), logger.Err(err))
			} else {
				cm.log.Info("config auto reloaded", logger.String("path", path))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			cm.log.Warn("config watch error", logger.Err(err))

		case <-cm.watchQuit:
			return
		}
	}
}

// validateConfigPath 校验配置路径合法性
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("stat path failed: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("path is a directory: %s", path)
	}
	return nil
}
