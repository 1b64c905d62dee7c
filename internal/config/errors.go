package config

import "fmt"

// ConfigError reports a missing or invalid setting. It is fatal: nothing that
// depends on configuration may be created once one has been returned.
type ConfigError struct {
	Key    string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("CONFIG_ERROR: %s: %s", e.Key, e.Reason)
}
