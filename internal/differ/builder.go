package differ

import (
	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/rs/zerolog"
)

// DifferBuilder provides a fluent interface for creating Differ
type DifferBuilder struct {
	logger zerolog.Logger
	config config.DiffConfig
}

// NewDifferBuilder creates a new builder
func NewDifferBuilder(logger zerolog.Logger) *DifferBuilder {
	return &DifferBuilder{
		logger: logger.With().Str("component", "Differ").Logger(),
		config: config.NewDefaultDiffConfig(),
	}
}

// WithConfig sets the diff summary bounds
func (b *DifferBuilder) WithConfig(cfg config.DiffConfig) *DifferBuilder {
	b.config = cfg
	return b
}

// Build creates a new Differ instance
func (b *DifferBuilder) Build() (*Differ, error) {
	if b.config.MaxLines < 0 {
		return nil, common.NewValidationError("max_lines", b.config.MaxLines, "max lines cannot be negative")
	}
	maxLines := b.config.MaxLines
	if maxLines == 0 {
		maxLines = config.DefaultDiffMaxLines
	}

	return &Differ{
		processor: NewDiffProcessor(maxLines, b.config.MaxLineLength),
		logger:    b.logger,
	}, nil
}

// NewDiffer creates a Differ with the given configuration
func NewDiffer(logger zerolog.Logger, cfg config.DiffConfig) (*Differ, error) {
	return NewDifferBuilder(logger).WithConfig(cfg).Build()
}
