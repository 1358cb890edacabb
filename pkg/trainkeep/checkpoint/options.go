package checkpoint

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/trainkeep/pkg/trainkeep/config"
	"github.com/randalmurphal/trainkeep/pkg/trainkeep/observability"
)

// Defaults used by DefaultConfig and ConfigFrom.
const (
	DefaultCheckpointPrefix = "checkpoint"
	DefaultRecoveryPrefix   = "recovery"
	DefaultMaxHistory       = 10
)

// ConfigKeys are the keys ConfigFrom reads.
var ConfigKeys = []string{"checkpoint_prefix", "recovery_prefix", "checkpoint_dir", "recovery_dir", "max_history"}

// EnvPrefix prefixes environment overrides of ConfigKeys, e.g. TRAINKEEP_MAX_HISTORY.
const EnvPrefix = "TRAINKEEP"

// Config fixes a Saver's file layout and retention bound.
// Empty directories mean the current working directory.
type Config struct {
	CheckpointPrefix string
	RecoveryPrefix   string
	CheckpointDir    string
	RecoveryDir      string
	MaxHistory       int
}

// DefaultConfig returns the default layout writing to the working directory.
func DefaultConfig() Config {
	return Config{
		CheckpointPrefix: DefaultCheckpointPrefix,
		RecoveryPrefix:   DefaultRecoveryPrefix,
		MaxHistory:       DefaultMaxHistory,
	}
}

// ConfigFrom reads a Config from a config section, falling back to DefaultConfig.
//
// Keys: checkpoint_prefix, recovery_prefix, checkpoint_dir, recovery_dir, max_history.
func ConfigFrom(cfg config.Config) Config {
	def := DefaultConfig()
	return Config{
		CheckpointPrefix: cfg.String("checkpoint_prefix", def.CheckpointPrefix),
		RecoveryPrefix:   cfg.String("recovery_prefix", def.RecoveryPrefix),
		CheckpointDir:    cfg.String("checkpoint_dir", def.CheckpointDir),
		RecoveryDir:      cfg.String("recovery_dir", def.RecoveryDir),
		MaxHistory:       cfg.Int("max_history", def.MaxHistory),
	}
}

// Validate checks the construction preconditions.
func (c Config) Validate() error {
	if c.MaxHistory < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxHistory, c.MaxHistory)
	}
	if c.CheckpointPrefix == "" || c.RecoveryPrefix == "" {
		return ErrEmptyPrefix
	}
	return nil
}

// saverConfig holds the collaborators a Saver is built with.
type saverConfig struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	store   FileStore
	catalog Catalog
	runID   string
	now     func() time.Time
}

// defaultSaverConfig returns quiet collaborators over the local disk.
func defaultSaverConfig() saverConfig {
	return saverConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		store:   NewDiskStore(),
		catalog: NewMemoryCatalog(),
		now:     time.Now,
	}
}

// Option configures a Saver.
type Option func(*saverConfig)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *saverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Default: observability.NoopMetrics.
//
// Example:
//
//	saver, err := checkpoint.NewSaver(cfg, checkpoint.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *saverConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing sets the span manager. Default: observability.NoopSpanManager.
func WithTracing(sm observability.SpanManager) Option {
	return func(c *saverConfig) {
		if sm != nil {
			c.spans = sm
		}
	}
}

// WithFileStore replaces the filesystem backend. Default: DiskStore.
func WithFileStore(store FileStore) Option {
	return func(c *saverConfig) {
		if store != nil {
			c.store = store
		}
	}
}

// WithCatalog sets where retention bookkeeping is mirrored.
// Pass a SQLiteCatalog to survive process restarts. Default: a fresh MemoryCatalog.
func WithCatalog(catalog Catalog) Option {
	return func(c *saverConfig) {
		if catalog != nil {
			c.catalog = catalog
		}
	}
}

// WithRunID sets the run ID stamped into every envelope.
// Default: a random UUID.
func WithRunID(runID string) Option {
	return func(c *saverConfig) {
		c.runID = runID
	}
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *saverConfig) {
		if now != nil {
			c.now = now
		}
	}
}
