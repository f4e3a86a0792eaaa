package column

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownColumn   = errors.New("unknown upload column")
	ErrDuplicateColumn = errors.New("upload column already registered")
	ErrInvalidConfig   = errors.New("invalid upload column configuration")
	ErrTempExpired     = errors.New("temporary upload no longer exists")
)

type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
