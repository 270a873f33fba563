package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	defaultSessionTTL       = 10 * time.Minute
	defaultMaxMessageLength = 10000
	defaultFuzzyCutoff      = 0.8
	defaultMaxSuggestions   = 3
	defaultPersistQueue     = 64
	defaultDecisionModel    = "gpt-4o-2024-08-06"
	defaultResponseModel    = "gpt-4o-mini"
)

// Config holds every setting read at startup.
type Config struct {
	CatalogURL  string `validate:"required"`
	InfoURL     string `validate:"required"`
	ParamPrefix string
	StateTable  string

	SessionTTL       time.Duration `validate:"gt=0"`
	MaxMessageLength int           `validate:"gt=0"`
	FuzzyCutoff      float64       `validate:"gt=0,lte=1"`
	MaxSuggestions   int           `validate:"gt=0"`
	PersistQueueSize int           `validate:"gt=0"`
	Humanize         bool

	DecisionModel string `validate:"required"`
	ResponseModel string `validate:"required"`
}

// ParameterReader batch-reads parameters by full name.
type ParameterReader interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// FromEnv reads the configuration through getenv, usually os.Getenv.
// Unparseable values fall back to their defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		return Config{}, errors.New("config: getenv must not be nil")
	}
	e := env(getenv)
	cfg := Config{
		CatalogURL:       e.str("CATALOG_URL", ""),
		InfoURL:          e.str("INFO_URL", ""),
		ParamPrefix:      strings.TrimRight(e.str("PARAM_PREFIX", ""), "/"),
		StateTable:       e.str("STATE_TABLE", ""),
		SessionTTL:       e.duration("SESSION_TTL", defaultSessionTTL),
		MaxMessageLength: e.int("MAX_MESSAGE_LENGTH", defaultMaxMessageLength),
		FuzzyCutoff:      e.float("FUZZY_CUTOFF", defaultFuzzyCutoff),
		MaxSuggestions:   e.int("FUZZY_MAX_SUGGESTIONS", defaultMaxSuggestions),
		PersistQueueSize: e.int("PERSIST_QUEUE_SIZE", defaultPersistQueue),
		Humanize:         e.bool("HUMANIZE", true),
		DecisionModel:    e.str("DECISION_MODEL", defaultDecisionModel),
		ResponseModel:    e.str("RESPONSE_MODEL", defaultResponseModel),
	}
	return cfg, cfg.Validate()
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// parameter names under <prefix>/config/.
const (
	paramDecisionModel = "decision_model"
	paramResponseModel = "response_model"
	paramFuzzyCutoff   = "fuzzy_cutoff"
)

// ApplyParameters overrides tunables with values found under
// <ParamPrefix>/config/. Missing parameters keep their current values; an
// unusable cutoff is ignored.
func (c *Config) ApplyParameters(ctx context.Context, ps ParameterReader) error {
	if ps == nil || c.ParamPrefix == "" {
		return nil
	}
	name := func(key string) string { return c.ParamPrefix + "/config/" + key }
	values, err := ps.GetParameters(ctx, name(paramDecisionModel), name(paramResponseModel), name(paramFuzzyCutoff))
	if err != nil {
		return fmt.Errorf("config: read parameters: %w", err)
	}
	if v := strings.TrimSpace(values[name(paramDecisionModel)]); v != "" {
		c.DecisionModel = v
	}
	if v := strings.TrimSpace(values[name(paramResponseModel)]); v != "" {
		c.ResponseModel = v
	}
	if v := strings.TrimSpace(values[name(paramFuzzyCutoff)]); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			c.FuzzyCutoff = f
		}
	}
	return nil
}

type env func(string) string

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def int) int {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (e env) float(key string, def float64) float64 {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func (e env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func (e env) bool(key string, def bool) bool {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
