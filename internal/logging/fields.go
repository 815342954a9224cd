package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 提供缓存操作的 action + key 字段。
func CacheFields(action, key string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"key":    key,
	}
}

// RequestFields 提供路由/资产/命中状态字段，供 HTTP 请求日志复用。
func RequestFields(route, key string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"route":     route,
		"key":       key,
		"cache_hit": cacheHit,
	}
}
