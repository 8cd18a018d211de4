package config

import (
	"time"

	"github.com/junbin-yang/go-simplefsm/pkg/logger"
)

// Option 配置管理器选项
type Option func(*ConfigManager)

// WithSerializer 设置无法识别扩展名时使用的序列化器
func WithSerializer(s Serializer) Option {
	return func(cm *ConfigManager) {
		cm.serializer = s
	}
}

// WithForceFormat 强制指定配置格式（无视文件后缀）
func WithForceFormat(s Serializer) Option {
	return func(cm *ConfigManager) {
		cm.forceFormat = s
	}
}

// WithConfigWatch 启用配置文件监听，interval为防抖间隔
func WithConfigWatch(enable bool, interval time.Duration) Option {
	return func(cm *ConfigManager) {
		cm.enableWatch = enable
		cm.watchDebounceInterval = interval
		if interval == 0 {
			cm.watchDebounceInterval = 500 * time.Millisecond
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(cm *ConfigManager) {
		cm.log = l
	}
}
