// Package pipeline runs one change-detection pass over all targets and
// commits the resulting state in a single batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/h-sim/ai-change-watcher/internal/classifier"
	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/datastore"
	"github.com/h-sim/ai-change-watcher/internal/differ"
	"github.com/h-sim/ai-change-watcher/internal/fetcher"
	"github.com/h-sim/ai-change-watcher/internal/metrics"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/h-sim/ai-change-watcher/internal/normalizer"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TargetFetcher downloads one target. Failures are reported in the result.
type TargetFetcher interface {
	Fetch(ctx context.Context, target models.Target, prior *models.StateRecord) models.FetchResult
}

// Settings tune a run.
type Settings struct {
	Concurrency   int
	TargetTimeout time.Duration
	HistoryLimit  int
	DryRun        bool
}

// Orchestrator wires fetch, normalize, diff and classify for every
// target and owns the single state commit of a run.
type Orchestrator struct {
	store       datastore.Store
	fetcher     TargetFetcher
	normalizers *normalizer.Registry
	differ      *differ.Differ
	classifier  *classifier.Classifier
	metrics     *metrics.Recorder
	lock        *RunLock
	settings    Settings
	logger      zerolog.Logger
	now         func() time.Time
	newRunID    func() string
}

// Run performs one pass. The returned error is ErrRunInProgress when the
// lock is held, or the *common.StateCommitError of a failed commit; in the
// latter case the RunResult is still returned for reporting.
func (o *Orchestrator) Run(ctx context.Context, targets []models.Target) (*models.RunResult, error) {
	release, err := o.lock.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	result := &models.RunResult{
		RunID:     o.newRunID(),
		StartedAt: o.now().UTC(),
	}
	log := o.logger.With().Str("run_id", result.RunID).Logger()
	log.Info().Int("targets", len(targets)).Msg("Run started")

	outcomes := make([]differ.Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(o.settings.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			outcomes[i] = o.processTarget(ctx, result.RunID, target, log)
			return nil
		})
	}
	_ = g.Wait()

	var batch []models.StateRecord
	for _, out := range outcomes {
		result.Events = append(result.Events, out.Event)
		if out.Record != nil {
			batch = append(batch, *out.Record)
		}
	}

	var commitErr error
	if o.settings.DryRun {
		log.Info().Int("records", len(batch)).Msg("Dry run, state not committed")
	} else {
		commitErr = o.commit(ctx, batch)
		result.Committed = commitErr == nil
		result.CommitErr = commitErr
	}
	result.FinishedAt = o.now().UTC()

	o.report(ctx, result, log)
	return result, commitErr
}

func (o *Orchestrator) commit(ctx context.Context, batch []models.StateRecord) error {
	if err := o.store.Commit(ctx, batch); err != nil {
		var commitErr *common.StateCommitError
		if errors.As(err, &commitErr) {
			return commitErr
		}
		return common.NewStateCommitError("unknown", err)
	}
	return nil
}

// processTarget never fails: every problem becomes a fetch-error event
// for this target alone.
func (o *Orchestrator) processTarget(ctx context.Context, runID string, target models.Target, log zerolog.Logger) (out differ.Outcome) {
	log = log.With().Str("target", target.Key()).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("Target processing panicked")
			out = o.failedOutcome(runID, target, nil, fmt.Errorf("internal error: %v", r))
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, o.settings.TargetTimeout)
	defer cancel()

	prior, err := o.store.Load(tctx, target.Key())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load prior state")
		return o.failedOutcome(runID, target, nil, fmt.Errorf("state load failed: %w", err))
	}

	fetch := o.fetcher.Fetch(tctx, target, prior)
	if o.metrics != nil {
		o.metrics.ObserveFetch(target.Key(), fetch.Duration)
	}

	var snap *models.CanonicalSnapshot
	if !fetch.Failed() && !fetch.NotModified {
		snap = o.normalizers.Canonicalize(target, fetch.Body)
	}

	if err := tctx.Err(); err != nil && !fetch.Failed() {
		reason := fmt.Errorf("%w: target exceeded its %s budget", common.ErrTimeout, o.settings.TargetTimeout)
		return o.failedOutcome(runID, target, prior, reason)
	}

	out = o.differ.Diff(differ.Input{
		RunID:    runID,
		Target:   target,
		Fetch:    fetch,
		Snapshot: snap,
		Prior:    prior,
		Now:      o.now(),
	})
	ev := o.classifier.Classify(target, classifier.Change{
		Event:    out.Event,
		Added:    out.Added,
		Previous: out.Previous,
		Current:  out.Current,
	})
	out.Finalize(ev, o.settings.HistoryLimit)

	log.Debug().Str("kind", string(ev.Kind)).Str("severity", string(ev.Severity)).Msg("Target processed")
	return out
}

func (o *Orchestrator) failedOutcome(runID string, target models.Target, prior *models.StateRecord, err error) differ.Outcome {
	reason := "internal"
	if errors.Is(err, common.ErrTimeout) {
		reason = fetcher.ReasonTimeout
	}
	fetch := models.FetchResult{
		TargetID: target.Key(),
		Err:      common.NewFetchError(target.Key(), target.URL, reason, err),
	}
	out := o.differ.Diff(differ.Input{
		RunID:  runID,
		Target: target,
		Fetch:  fetch,
		Prior:  prior,
		Now:    o.now(),
	})
	ev := o.classifier.Classify(target, classifier.Change{Event: out.Event})
	out.Finalize(ev, o.settings.HistoryLimit)
	return out
}

func (o *Orchestrator) report(ctx context.Context, result *models.RunResult, log zerolog.Logger) {
	counts := result.Counts()
	entry := log.Info()
	if result.CommitErr != nil {
		entry = log.Error().Err(result.CommitErr)
	}
	entry.
		Int("new", counts.New).
		Int("changed", counts.Changed).
		Int("unchanged", counts.Unchanged).
		Int("fetch_error", counts.FetchError).
		Int("degraded", counts.Degraded).
		Int("important", len(result.Important())).
		Bool("committed", result.Committed).
		Dur("duration", result.Duration()).
		Msg("Run finished")

	if o.metrics != nil {
		o.metrics.ObserveRun(result)
	}

	if recorder, ok := o.store.(datastore.RunRecorder); ok && !o.settings.DryRun {
		summary := datastore.RunSummary{
			RunID:      result.RunID,
			StartedAt:  result.StartedAt,
			FinishedAt: result.FinishedAt,
			Counts:     counts,
			Committed:  result.Committed,
		}
		if result.CommitErr != nil {
			summary.Error = result.CommitErr.Error()
		}
		if err := recorder.RecordRun(ctx, summary); err != nil {
			log.Warn().Err(err).Msg("Failed to record run summary")
		}
	}
}
