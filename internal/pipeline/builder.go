package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/h-sim/ai-change-watcher/internal/classifier"
	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/datastore"
	"github.com/h-sim/ai-change-watcher/internal/differ"
	"github.com/h-sim/ai-change-watcher/internal/metrics"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/h-sim/ai-change-watcher/internal/normalizer"
	"github.com/rs/zerolog"
)

// LockFileName is the run lock created in the state directory.
const LockFileName = "changewatch.lock"

// OrchestratorBuilder provides a fluent interface for creating Orchestrator
type OrchestratorBuilder struct {
	logger      zerolog.Logger
	store       datastore.Store
	fetcher     TargetFetcher
	normalizers *normalizer.Registry
	differ      *differ.Differ
	classifier  *classifier.Classifier
	metrics     *metrics.Recorder
	lock        *RunLock
	settings    Settings
	now         func() time.Time
	newRunID    func() string
}

// NewOrchestratorBuilder creates a new builder
func NewOrchestratorBuilder(logger zerolog.Logger) *OrchestratorBuilder {
	return &OrchestratorBuilder{
		logger: logger.With().Str("component", "Orchestrator").Logger(),
		settings: Settings{
			Concurrency:   config.DefaultFetchMaxConcurrency,
			TargetTimeout: config.DefaultFetchTargetTimeoutSeconds * time.Second,
			HistoryLimit:  models.DefaultHistoryLimit,
		},
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
}

// WithStore sets the state store
func (b *OrchestratorBuilder) WithStore(store datastore.Store) *OrchestratorBuilder {
	b.store = store
	return b
}

// WithFetcher sets the target fetcher
func (b *OrchestratorBuilder) WithFetcher(fetcher TargetFetcher) *OrchestratorBuilder {
	b.fetcher = fetcher
	return b
}

// WithNormalizers overrides the normalizer registry
func (b *OrchestratorBuilder) WithNormalizers(registry *normalizer.Registry) *OrchestratorBuilder {
	b.normalizers = registry
	return b
}

// WithDiffer overrides the differ
func (b *OrchestratorBuilder) WithDiffer(d *differ.Differ) *OrchestratorBuilder {
	b.differ = d
	return b
}

// WithClassifier overrides the classifier
func (b *OrchestratorBuilder) WithClassifier(c *classifier.Classifier) *OrchestratorBuilder {
	b.classifier = c
	return b
}

// WithMetrics sets the metrics recorder
func (b *OrchestratorBuilder) WithMetrics(recorder *metrics.Recorder) *OrchestratorBuilder {
	b.metrics = recorder
	return b
}

// WithLock sets the run lock
func (b *OrchestratorBuilder) WithLock(lock *RunLock) *OrchestratorBuilder {
	b.lock = lock
	return b
}

// WithSettings sets run settings; zero fields keep their defaults
func (b *OrchestratorBuilder) WithSettings(settings Settings) *OrchestratorBuilder {
	if settings.Concurrency > 0 {
		b.settings.Concurrency = settings.Concurrency
	}
	if settings.TargetTimeout > 0 {
		b.settings.TargetTimeout = settings.TargetTimeout
	}
	if settings.HistoryLimit > 0 {
		b.settings.HistoryLimit = settings.HistoryLimit
	}
	b.settings.DryRun = settings.DryRun
	return b
}

// WithClock overrides the time source
func (b *OrchestratorBuilder) WithClock(now func() time.Time) *OrchestratorBuilder {
	b.now = now
	return b
}

// WithRunIDGenerator overrides how run IDs are created
func (b *OrchestratorBuilder) WithRunIDGenerator(newRunID func() string) *OrchestratorBuilder {
	b.newRunID = newRunID
	return b
}

// Build creates a new Orchestrator instance
func (b *OrchestratorBuilder) Build() (*Orchestrator, error) {
	if b.store == nil {
		return nil, common.NewValidationError("store", b.store, "state store cannot be nil")
	}
	if b.fetcher == nil {
		return nil, common.NewValidationError("fetcher", b.fetcher, "fetcher cannot be nil")
	}

	if b.normalizers == nil {
		b.normalizers = normalizer.NewRegistry(b.logger)
	}
	if b.differ == nil {
		d, err := differ.NewDiffer(b.logger, config.NewDefaultDiffConfig())
		if err != nil {
			return nil, err
		}
		b.differ = d
	}
	if b.classifier == nil {
		b.classifier = classifier.NewClassifier(b.logger)
	}
	if b.lock == nil {
		b.lock = NewRunLock("")
	}

	return &Orchestrator{
		store:       b.store,
		fetcher:     b.fetcher,
		normalizers: b.normalizers,
		differ:      b.differ,
		classifier:  b.classifier,
		metrics:     b.metrics,
		lock:        b.lock,
		settings:    b.settings,
		logger:      b.logger,
		now:         b.now,
		newRunID:    b.newRunID,
	}, nil
}
