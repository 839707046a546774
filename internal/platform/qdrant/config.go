package qdrant

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Host and Port address the Qdrant gRPC endpoint.
	Host string
	Port int
	// Collection names for the three point spaces.
	AssetCollection    string
	KeyframeCollection string
	ColorCollection    string
	// VectorDim is the embedding dimension of the asset and keyframe
	// collections. The color collection is always 3-dimensional.
	VectorDim int
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ConfigErrorCode string

const (
	ConfigErrorMissingHost       ConfigErrorCode = "missing_host"
	ConfigErrorInvalidPort       ConfigErrorCode = "invalid_port"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingHost:
		return "QDRANT_HOST is required"
	case ConfigErrorInvalidPort:
		return fmt.Sprintf("invalid QDRANT_PORT=%q; expected port in 1..65535", e.Value)
	case ConfigErrorMissingCollection:
		return fmt.Sprintf("collection name %s must not be empty", e.Value)
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:               strings.TrimSpace(os.Getenv("QDRANT_HOST")),
		Port:               6334,
		AssetCollection:    "videos",
		KeyframeCollection: "keyframes",
		ColorCollection:    "colors",
		VectorDim:          512,
	}
	if rawPort := strings.TrimSpace(os.Getenv("QDRANT_PORT")); rawPort != "" {
		p, err := strconv.Atoi(rawPort)
		if err != nil || p < 1 || p > 65535 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidPort, Value: rawPort, Cause: err}
		}
		cfg.Port = p
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_ASSET_COLLECTION")); v != "" {
		cfg.AssetCollection = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_KEYFRAME_COLLECTION")); v != "" {
		cfg.KeyframeCollection = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_COLOR_COLLECTION")); v != "" {
		cfg.ColorCollection = v
	}
	if rawDim := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_DIM")); rawDim != "" {
		dim, err := strconv.Atoi(rawDim)
		if err != nil || dim <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: rawDim, Cause: err}
		}
		cfg.VectorDim = dim
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.Host == "" {
		return &ConfigError{Code: ConfigErrorMissingHost}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ConfigError{Code: ConfigErrorInvalidPort, Value: strconv.Itoa(cfg.Port)}
	}
	for name, value := range map[string]string{
		"QDRANT_ASSET_COLLECTION":    cfg.AssetCollection,
		"QDRANT_KEYFRAME_COLLECTION": cfg.KeyframeCollection,
		"QDRANT_COLOR_COLLECTION":    cfg.ColorCollection,
	} {
		if value == "" {
			return &ConfigError{Code: ConfigErrorMissingCollection, Value: name}
		}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
