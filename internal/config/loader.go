package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvConfigPath 指定配置文件路径的环境变量，优先级低于 --config。
	EnvConfigPath = "CHOCOLATESTORE_CONFIG"
	// DefaultConfigFile 是未显式指定时在当前目录查找的配置文件。
	DefaultConfigFile = "chocolatestore.toml"

	envPrefix = "CHOCOLATESTORE"

	defaultLogLevel      = "warn"
	defaultResolver      = "html"
	defaultCatalogURL    = "https://chocolatey.org/packages/"
	defaultRepositoryURL = "https://community.chocolatey.org/api/v2"
	defaultUserAgent     = "chocolatestore/1.0"
	defaultListenPort    = 8624
)

// ResolvePath 按 flag → 环境变量 → 当前目录默认文件的顺序计算配置路径；
// 都不存在时返回空串，表示仅使用默认值。
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
// path 为空时跳过文件读取。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				return nil, fmt.Errorf("读取配置失败: %w", pathErr)
			}
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", defaultLogLevel)
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Resolver", defaultResolver)
	v.SetDefault("CatalogURL", defaultCatalogURL)
	v.SetDefault("RepositoryURL", defaultRepositoryURL)
	v.SetDefault("UserAgent", defaultUserAgent)
	v.SetDefault("FetchTimeout", "10m")
	v.SetDefault("MaxConcurrentDownloads", 1)
	v.SetDefault("Strict", false)
	v.SetDefault("ListenPort", defaultListenPort)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = defaultLogLevel
	}
	g.Resolver = strings.ToLower(strings.TrimSpace(g.Resolver))
	if g.Resolver == "" {
		g.Resolver = defaultResolver
	}
	if g.CatalogURL == "" {
		g.CatalogURL = defaultCatalogURL
	}
	if g.RepositoryURL == "" {
		g.RepositoryURL = defaultRepositoryURL
	}
	if g.UserAgent == "" {
		g.UserAgent = defaultUserAgent
	}
	if g.FetchTimeout.DurationValue() == 0 {
		g.FetchTimeout = Duration(10 * time.Minute)
	}
	if g.MaxConcurrentDownloads == 0 {
		g.MaxConcurrentDownloads = 1
	}
	if g.ListenPort == 0 {
		g.ListenPort = defaultListenPort
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
