package config

import "time"

type SessionConfig interface {
	GetTickInterval() time.Duration
	GetExpiringSoonThreshold() time.Duration
}

var _ SessionConfig = mainConfig{}

// GetTickInterval is how often the controller re-checks the session expiry.
// Validation keeps it at or below one minute.
func (c mainConfig) GetTickInterval() time.Duration {
	return c.TickInterval
}

func (c mainConfig) GetExpiringSoonThreshold() time.Duration {
	return c.ExpiringSoon
}
