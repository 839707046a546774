package clip

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// URL is the base address of the CLIP inference service,
	// e.g. http://clip:8000.
	URL string
	// VectorDim is the embedding dimension the service produces. Responses
	// with a different dimension are rejected.
	VectorDim int
	// TimeoutSeconds bounds each vectorize call. Zero means the default.
	TimeoutSeconds int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL       ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL       ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidVectorDim ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid clip config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "CLIP_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid CLIP_URL=%q; expected absolute URL like http://clip:8000", e.Value)
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid CLIP_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid clip config"
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
		URL:            strings.TrimSpace(os.Getenv("CLIP_URL")),
		VectorDim:      512,
		TimeoutSeconds: 30,
	}
	if rawDim := strings.TrimSpace(os.Getenv("CLIP_VECTOR_DIM")); rawDim != "" {
		dim, err := strconv.Atoi(rawDim)
		if err != nil || dim <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: rawDim, Cause: err}
		}
		cfg.VectorDim = dim
	}
	if rawTimeout := strings.TrimSpace(os.Getenv("CLIP_TIMEOUT_SECONDS")); rawTimeout != "" {
		if t, err := strconv.Atoi(rawTimeout); err == nil && t > 0 {
			cfg.TimeoutSeconds = t
		}
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
