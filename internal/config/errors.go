package config

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ConfigurationError.
type ErrorKind string

const (
	// KindMissing means the configuration entry does not exist.
	KindMissing ErrorKind = "missing_config"
	// KindInvalid means the entry exists but a required field is absent or malformed.
	KindInvalid ErrorKind = "invalid_config"
	// KindMapping means provider output does not fit the canonical schema.
	KindMapping ErrorKind = "mapping_error"
)

// ConfigurationError is an operator-fixable defect. It is never retried and
// never triggers fallback to another provider.
type ConfigurationError struct {
	Kind    ErrorKind
	Key     string
	Context string
}

func (e *ConfigurationError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("config: %s for %q", e.Kind, e.Key)
	}
	return fmt.Sprintf("config: %s for %q: %s", e.Kind, e.Key, e.Context)
}

// MissingConfig creates a ConfigurationError for an absent entry.
func MissingConfig(key, context string) *ConfigurationError {
	return &ConfigurationError{Kind: KindMissing, Key: key, Context: context}
}

// InvalidConfig creates a ConfigurationError for a malformed entry.
func InvalidConfig(key, reason string) *ConfigurationError {
	return &ConfigurationError{Kind: KindInvalid, Key: key, Context: reason}
}

// MappingError creates a ConfigurationError for a provider/schema mismatch.
func MappingError(key, reason string) *ConfigurationError {
	return &ConfigurationError{Kind: KindMapping, Key: key, Context: reason}
}

// AsConfigurationError returns the ConfigurationError in err's chain, if any.
func AsConfigurationError(err error) (*ConfigurationError, bool) {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
