// Package normalizer turns fetched documents into canonical text: the
// deterministic form whose SHA-256 is a target's fingerprint.
package normalizer

import (
	"fmt"
	"sort"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
)

const (
	DefaultBodyLimit = 5000
	DefaultMaxItems  = 200
)

// DefaultIgnorePaths are the OpenAPI fields dropped when a target sets no
// ignore_paths of its own.
var DefaultIgnorePaths = []string{"info.version", "info.x-generated-at", "x-generated-at"}

// Options carries the per-target knobs of the normalizers.
type Options struct {
	BaseURL         string
	IgnoreSelectors []string
	IgnorePaths     []string
	IgnoreParams    []string
	KeepIDs         bool
	KeepDates       bool
	BodyLimit       int
	MaxItems        int
}

// OptionsFor derives normalizer options from a target's policy.
func OptionsFor(target models.Target) Options {
	opts := Options{
		BaseURL:         target.URL,
		IgnoreSelectors: target.Policy.IgnoreSelectors,
		IgnorePaths:     target.Policy.IgnorePaths,
		IgnoreParams:    target.Policy.IgnoreParams,
		KeepIDs:         target.Policy.Significant("id"),
		KeepDates:       target.Policy.Significant("date"),
		BodyLimit:       target.Policy.BodyLimit,
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.BodyLimit <= 0 {
		o.BodyLimit = DefaultBodyLimit
	}
	if o.MaxItems <= 0 {
		o.MaxItems = DefaultMaxItems
	}
	if len(o.IgnorePaths) == 0 {
		o.IgnorePaths = DefaultIgnorePaths
	}
	return o
}

// Output is the result of one normalizer. Degraded output is usable but
// was produced by a lossy fallback path.
type Output struct {
	Text           string
	Degraded       bool
	DegradedReason string
}

// Normalizer is one format-specific canonicalization.
type Normalizer interface {
	Format() models.Format
	Normalize(raw string, opts Options) (Output, error)
}

// Registry maps formats to normalizers.
type Registry struct {
	normalizers map[models.Format]Normalizer
	logger      zerolog.Logger
}

// NewRegistry returns a registry with every built-in format registered.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		normalizers: make(map[models.Format]Normalizer),
		logger:      logger.With().Str("component", "Normalizer").Logger(),
	}
	r.Register(NewPlainNormalizer())
	r.Register(NewHTMLNormalizer())
	r.Register(NewRSSNormalizer())
	r.Register(NewOpenAPINormalizer())
	return r
}

// Register adds or replaces the normalizer of its format.
func (r *Registry) Register(n Normalizer) {
	r.normalizers[n.Format()] = n
}

// Formats lists the registered formats.
func (r *Registry) Formats() []models.Format {
	formats := make([]models.Format, 0, len(r.normalizers))
	for f := range r.normalizers {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}

// Normalize runs the normalizer of format on raw.
func (r *Registry) Normalize(format models.Format, raw string, opts Options) (Output, error) {
	n, ok := r.normalizers[format]
	if !ok {
		return Output{}, common.NewParseError(string(format), fmt.Errorf("no normalizer registered"))
	}
	out, err := n.Normalize(raw, opts.withDefaults())
	if err != nil {
		return Output{}, common.NewParseError(string(format), err)
	}
	return out, nil
}

// Canonicalize normalizes a fetched body for target. A format-specific
// failure falls back to plain text and marks the snapshot degraded; it
// never fails.
func (r *Registry) Canonicalize(target models.Target, body []byte) *models.CanonicalSnapshot {
	raw := string(body)
	opts := OptionsFor(target)

	out, err := r.Normalize(target.Format, raw, opts)
	if err != nil {
		r.logger.Warn().Err(err).Str("target", target.Key()).Msg("Normalization degraded to plain text")
		plain, _ := r.normalizers[models.FormatPlain].Normalize(raw, opts)
		snap := models.NewCanonicalSnapshot(target.Key(), plain.Text)
		snap.Degraded = true
		snap.DegradedReason = err.Error()
		return snap
	}

	snap := models.NewCanonicalSnapshot(target.Key(), out.Text)
	if out.Degraded {
		r.logger.Warn().Str("target", target.Key()).Str("reason", out.DegradedReason).Msg("Normalization degraded")
		snap.Degraded = true
		snap.DegradedReason = out.DegradedReason
	}
	return snap
}
