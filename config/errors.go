package config

import (
	"errors"

	"github.com/poiesic/lorekeeper/embedding"
)

var (
	// ErrNotConfigured indicates a feature's required keys are missing.
	// It is the same value as embedding.ErrNotConfigured so callers can test
	// either with errors.Is.
	ErrNotConfigured = embedding.ErrNotConfigured

	// ErrUnknownKey is returned when reading or writing a key that does not exist.
	ErrUnknownKey = errors.New("unknown configuration key")

	// ErrNoConfigFile is returned by Save when no config file path is set.
	ErrNoConfigFile = errors.New("no config file path set")
)
