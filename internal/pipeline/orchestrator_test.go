package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/datastore"
	"github.com/h-sim/ai-change-watcher/internal/fetcher"
	"github.com/h-sim/ai-change-watcher/internal/metrics"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves bodies from memory; a missing body is a network error.
// A delayed target answers late regardless of its context.
type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	panics map[string]bool
	delays map[string]time.Duration
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{bodies: map[string]string{}, panics: map[string]bool{}, delays: map[string]time.Duration{}}
}

func (s *stubFetcher) set(targetID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[targetID] = body
}

func (s *stubFetcher) Fetch(_ context.Context, target models.Target, _ *models.StateRecord) models.FetchResult {
	s.mu.Lock()
	body, ok := s.bodies[target.Key()]
	boom := s.panics[target.Key()]
	delay := s.delays[target.Key()]
	s.mu.Unlock()

	time.Sleep(delay)

	if boom {
		panic("fetcher exploded")
	}
	result := models.FetchResult{TargetID: target.Key(), Duration: time.Millisecond}
	if !ok {
		result.Err = common.NewFetchError(target.Key(), target.URL, fetcher.ReasonNetwork, errors.New("connection refused"))
		return result
	}
	result.Body = []byte(body)
	result.StatusCode = http.StatusOK
	return result
}

// failingStore loads nothing and refuses every commit.
type failingStore struct {
	commits int
}

func (s *failingStore) Load(context.Context, string) (*models.StateRecord, error) { return nil, nil }
func (s *failingStore) LoadAll(context.Context) ([]models.StateRecord, error) { return nil, nil }
func (s *failingStore) Delete(context.Context, ...string) error { return nil }
func (s *failingStore) Close() error { return nil }
func (s *failingStore) Commit(context.Context, []models.StateRecord) error {
	s.commits++
	return errors.New("disk full")
}

func plainTarget(id string, impact models.Impact) models.Target {
	return models.Target{
		ID:     id,
		Name:   "Target " + id,
		URL:    "https://example.com/" + id,
		Format: models.FormatPlain,
		Impact: impact,
	}
}

func newTestStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()
	store, err := datastore.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), 10, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestOrchestrator(t *testing.T, store datastore.Store, f TargetFetcher, settings Settings) *Orchestrator {
	t.Helper()
	runs := 0
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	o, err := NewOrchestratorBuilder(zerolog.Nop()).
		WithStore(store).
		WithFetcher(f).
		WithSettings(settings).
		WithClock(func() time.Time { return clock }).
		WithRunIDGenerator(func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		}).
		Build()
	require.NoError(t, err)
	return o
}

func eventFor(t *testing.T, result *models.RunResult, targetID string) models.ChangeEvent {
	t.Helper()
	for _, ev := range result.Events {
		if ev.TargetID == targetID {
			return ev
		}
	}
	t.Fatalf("no event for target %s", targetID)
	return models.ChangeEvent{}
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	f := newStubFetcher()
	f.set("a", "alpha line one")
	f.set("b", "beta line one")
	targets := []models.Target{plainTarget("a", models.ImpactLow), plainTarget("b", models.ImpactHigh)}
	o := newTestOrchestrator(t, store, f, Settings{Concurrency: 2})

	first, err := o.Run(ctx, targets)
	require.NoError(t, err)
	assert.True(t, first.Committed)
	assert.Equal(t, "run-1", first.RunID)
	require.Len(t, first.Events, 2)
	assert.Equal(t, models.KindNew, eventFor(t, first, "a").Kind)
	assert.Equal(t, models.SeverityRoutine, eventFor(t, first, "a").Severity)
	assert.Equal(t, models.SeverityImportant, eventFor(t, first, "b").Severity)

	recA, err := store.Load(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, recA)
	assert.Contains(t, recA.Snapshot, "alpha line one")
	assert.Len(t, recA.History, 1)

	second, err := o.Run(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, models.KindUnchanged, eventFor(t, second, "a").Kind)
	assert.Equal(t, models.SeverityNone, eventFor(t, second, "a").Severity)
	assert.Empty(t, second.All())

	f.set("a", "alpha line one\nalpha line two")
	third, err := o.Run(ctx, targets)
	require.NoError(t, err)
	changed := eventFor(t, third, "a")
	assert.Equal(t, models.KindChanged, changed.Kind)
	require.NotNil(t, changed.Diff)
	assert.Equal(t, 1, changed.Diff.LinesAdded)
	assert.Contains(t, changed.Description, "+ alpha line two")

	recA, err = store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Contains(t, recA.Snapshot, "alpha line two")
	require.Len(t, recA.History, 2)
	assert.Equal(t, changed.ID, recA.History[1].ID)

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestOrchestrator_TargetOverBudgetIsFetchError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	f := newStubFetcher()
	f.set("fast", "quick answer")
	f.set("slow", "late answer")
	f.delays["slow"] = 300 * time.Millisecond
	targets := []models.Target{plainTarget("fast", models.ImpactLow), plainTarget("slow", models.ImpactLow)}
	o := newTestOrchestrator(t, store, f, Settings{Concurrency: 2, TargetTimeout: 50 * time.Millisecond})

	result, err := o.Run(ctx, targets)
	require.NoError(t, err)
	assert.True(t, result.Committed)

	slow := eventFor(t, result, "slow")
	assert.Equal(t, models.KindFetchError, slow.Kind)
	assert.Equal(t, models.SeverityRoutine, slow.Severity)
	assert.Contains(t, slow.Description, "budget")
	assert.Contains(t, slow.Description, fetcher.ReasonTimeout)
	assert.Equal(t, models.KindNew, eventFor(t, result, "fast").Kind)

	rec, err := store.Load(ctx, "fast")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Snapshot, "quick answer")

	rec, err = store.Load(ctx, "slow")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOrchestrator_FetchErrorIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	f := newStubFetcher()
	f.set("ok", "stable")
	f.set("flaky", "first version")
	targets := []models.Target{plainTarget("ok", models.ImpactLow), plainTarget("flaky", models.ImpactLow), plainTarget("down", models.ImpactLow)}
	o := newTestOrchestrator(t, store, f, Settings{})

	_, err := o.Run(ctx, targets)
	require.NoError(t, err)

	f.mu.Lock()
	delete(f.bodies, "flaky")
	f.mu.Unlock()

	result, err := o.Run(ctx, targets)
	require.NoError(t, err)
	assert.True(t, result.Committed)

	flaky := eventFor(t, result, "flaky")
	assert.Equal(t, models.KindFetchError, flaky.Kind)
	assert.Equal(t, models.SeverityRoutine, flaky.Severity)
	assert.Contains(t, flaky.Description, "connection refused")
	assert.Equal(t, models.KindUnchanged, eventFor(t, result, "ok").Kind)
	assert.Equal(t, models.KindFetchError, eventFor(t, result, "down").Kind)

	rec, err := store.Load(ctx, "flaky")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Snapshot, "first version")
	assert.Len(t, rec.History, 1)

	rec, err = store.Load(ctx, "down")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOrchestrator_PanicBecomesFetchError(t *testing.T) {
	store := newTestStore(t)
	f := newStubFetcher()
	f.set("good", "fine")
	f.panics["bad"] = true
	o := newTestOrchestrator(t, store, f, Settings{})

	result, err := o.Run(context.Background(), []models.Target{plainTarget("good", models.ImpactLow), plainTarget("bad", models.ImpactLow)})
	require.NoError(t, err)

	bad := eventFor(t, result, "bad")
	assert.Equal(t, models.KindFetchError, bad.Kind)
	assert.Contains(t, bad.Description, "fetcher exploded")
	assert.Equal(t, models.KindNew, eventFor(t, result, "good").Kind)
}

func TestOrchestrator_CommitFailure(t *testing.T) {
	store := &failingStore{}
	f := newStubFetcher()
	f.set("a", "content")
	o := newTestOrchestrator(t, store, f, Settings{})

	result, err := o.Run(context.Background(), []models.Target{plainTarget("a", models.ImpactLow)})
	require.Error(t, err)
	assert.True(t, common.IsStateCommitError(err))
	require.NotNil(t, result)
	assert.False(t, result.Committed)
	assert.Equal(t, err, result.CommitErr)
	assert.Len(t, result.Events, 1)
	assert.Equal(t, 1, store.commits)
}

func TestOrchestrator_DryRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	f := newStubFetcher()
	f.set("a", "content")
	o := newTestOrchestrator(t, store, f, Settings{DryRun: true})

	result, err := o.Run(ctx, []models.Target{plainTarget("a", models.ImpactLow)})
	require.NoError(t, err)
	assert.False(t, result.Committed)
	assert.Equal(t, models.KindNew, eventFor(t, result, "a").Kind)

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOrchestrator_WithHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(`<rss><channel><item><title>Launch</title><link>https://example.com/launch</link></item></channel></rss>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := config.NewDefaultFetchConfig()
	cfg.EnableHTTP2 = false
	f, err := fetcher.NewFetcherFromConfig(cfg, zerolog.Nop())
	require.NoError(t, err)

	recorder := metrics.NewRecorder()
	store := newTestStore(t)
	o, err := NewOrchestratorBuilder(zerolog.Nop()).
		WithStore(store).
		WithFetcher(f).
		WithMetrics(recorder).
		Build()
	require.NoError(t, err)

	targets := []models.Target{
		{ID: "feed", Name: "Feed", URL: server.URL + "/feed.xml", Format: models.FormatRSS, Impact: models.ImpactLow},
		{ID: "gone", Name: "Gone", URL: server.URL + "/gone", Format: models.FormatHTML, Impact: models.ImpactLow},
	}
	result, err := o.Run(context.Background(), targets)
	require.NoError(t, err)

	feed := eventFor(t, result, "feed")
	assert.Equal(t, models.KindNew, feed.Kind)
	assert.False(t, feed.Degraded)
	assert.Equal(t, models.KindFetchError, eventFor(t, result, "gone").Kind)

	rec, err := store.Load(context.Background(), "feed")
	require.NoError(t, err)
	assert.Contains(t, rec.Snapshot, "title: Launch")
}

func TestOrchestratorBuilder_Validation(t *testing.T) {
	_, err := NewOrchestratorBuilder(zerolog.Nop()).WithFetcher(newStubFetcher()).Build()
	assert.Error(t, err)

	_, err = NewOrchestratorBuilder(zerolog.Nop()).WithStore(&failingStore{}).Build()
	assert.Error(t, err)
}

func TestOrchestrator_RunLockHeld(t *testing.T) {
	lock := NewRunLock("")
	release, err := lock.Acquire()
	require.NoError(t, err)
	defer release()

	o, err := NewOrchestratorBuilder(zerolog.Nop()).
		WithStore(&failingStore{}).
		WithFetcher(newStubFetcher()).
		WithLock(lock).
		Build()
	require.NoError(t, err)

	result, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, result)
}
