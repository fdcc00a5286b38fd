package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

var supportedResolvers = map[string]struct{}{
	"html":  {},
	"odata": {},
}

const supportedResolverList = "html|odata"

// Validate 针对语义级别做进一步校验，防止非法配置进入下载流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError(globalField("LogLevel"), "无法识别的日志级别")
	}
	if g.LogMaxSize < 0 {
		return newFieldError(globalField("LogMaxSize"), "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError(globalField("LogMaxBackups"), "不能为负数")
	}
	if _, ok := supportedResolvers[strings.ToLower(strings.TrimSpace(g.Resolver))]; !ok {
		return newFieldError(globalField("Resolver"), "仅支持 "+supportedResolverList)
	}
	if err := validateEndpoint(g.CatalogURL); err != nil {
		return fmt.Errorf("%s: %w", globalField("CatalogURL"), err)
	}
	if err := validateEndpoint(g.RepositoryURL); err != nil {
		return fmt.Errorf("%s: %w", globalField("RepositoryURL"), err)
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError(globalField("FetchTimeout"), "必须大于 0")
	}
	if g.MaxConcurrentDownloads <= 0 {
		return newFieldError(globalField("MaxConcurrentDownloads"), "必须大于 0")
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	return nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
