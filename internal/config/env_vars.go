package config

import (
	"strings"
	"time"
)

var _ EnvConfig = mainConfig{}

func (c mainConfig) GetEnv() string {
	return strings.ToUpper(c.Env)
}

func (c mainConfig) GetAppName() string {
	return c.AppName
}

func (c mainConfig) GetLogLevel() string {
	return c.LogLevel
}

// GetAPIBaseURL returns the coworking API base URL without a trailing slash
func (c mainConfig) GetAPIBaseURL() string {
	return strings.TrimRight(c.APIBaseURL, "/")
}

func (c mainConfig) GetDefaultSpace() string {
	return c.DefaultSpace
}

func (c mainConfig) GetPort() string {
	port := c.Port
	if port != "" && port[0] != ':' {
		port = ":" + port
	}
	return port
}

func (c mainConfig) GetJWTSecret() string {
	return c.JWTSecret
}

func (c mainConfig) GetAccessTokenTTL() time.Duration {
	return c.AccessTokenTTL
}
