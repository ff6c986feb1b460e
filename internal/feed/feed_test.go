package feed

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func event(id string, kind models.ChangeKind, severity models.Severity, offset time.Duration) models.ChangeEvent {
	return models.ChangeEvent{
		ID:          id,
		TargetID:    "news",
		TargetName:  "OpenAI News",
		TargetURL:   "https://openai.com/news/rss.xml",
		Impact:      models.ImpactHigh,
		Kind:        kind,
		Severity:    severity,
		Timestamp:   base.Add(offset),
		Description: "event " + id,
	}
}

func parseFeed(t *testing.T, data []byte) *xmlquery.Node {
	t.Helper()
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	return doc
}

func TestRenderer_BaseURL(t *testing.T) {
	tests := []struct {
		name    string
		siteURL string
		env     map[string]string
		want    string
	}{
		{name: "config wins", siteURL: "https://feeds.example.com", env: map[string]string{"SITE_URL": "https://env.example.com"}, want: "https://feeds.example.com/"},
		{name: "site url env", env: map[string]string{"SITE_URL": "https://env.example.com/", "GITHUB_REPOSITORY": "o/r"}, want: "https://env.example.com/"},
		{name: "github pages", env: map[string]string{"GITHUB_REPOSITORY": "h-sim/ai-change-watcher"}, want: "https://h-sim.github.io/ai-change-watcher/"},
		{name: "malformed repository", env: map[string]string{"GITHUB_REPOSITORY": "noslash"}, want: "http://localhost/"},
		{name: "local default", want: "http://localhost/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRenderer(config.FeedConfig{SiteURL: tt.siteURL}, zerolog.Nop())
			r.getenv = func(key string) string { return tt.env[key] }
			assert.Equal(t, tt.want, r.BaseURL())
		})
	}
}

func TestCollect(t *testing.T) {
	records := []models.StateRecord{
		{TargetID: "a", History: []models.ChangeEvent{
			event("a1", models.KindNew, models.SeverityImportant, 0),
			event("a2", models.KindChanged, models.SeverityRoutine, 2*time.Hour),
		}},
		{TargetID: "b", History: []models.ChangeEvent{
			event("b1", models.KindNew, models.SeverityRoutine, time.Hour),
		}},
	}
	current := &models.RunResult{Events: []models.ChangeEvent{
		event("a2", models.KindChanged, models.SeverityRoutine, 2*time.Hour),
		event("c1", models.KindFetchError, models.SeverityRoutine, 3*time.Hour),
		event("d1", models.KindUnchanged, models.SeverityNone, 3*time.Hour),
	}}
	degraded := event("e1", models.KindUnchanged, models.SeverityNone, 4*time.Hour)
	degraded.Degraded = true
	current.Events = append(current.Events, degraded)

	events := Collect(records, current)

	var ids []string
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"e1", "c1", "a2", "b1", "a1"}, ids)
	assert.Len(t, Collect(nil, nil), 0)
}

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer(config.FeedConfig{Title: "Watch", MaxItems: 2, SiteURL: "https://feeds.example.com"}, zerolog.Nop())

	markup := event("x", models.KindChanged, models.SeverityImportant, time.Hour)
	markup.Description = `Content changed <script>alert(1)</script><b>bold</b> & more`
	events := []models.ChangeEvent{
		markup,
		event("y", models.KindNew, models.SeverityRoutine, 0),
		event("z", models.KindNew, models.SeverityRoutine, -time.Hour),
	}

	data, err := r.Render("Watch", events)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte(`<?xml version="1.0" encoding="UTF-8"?>`)))

	doc := parseFeed(t, data)
	assert.Equal(t, "2.0", xmlquery.FindOne(doc, "/rss").SelectAttr("version"))
	assert.Equal(t, "https://feeds.example.com/", xmlquery.FindOne(doc, "//channel/link").InnerText())
	assert.Equal(t, "Tue, 01 Apr 2025 09:00:00 +0000", xmlquery.FindOne(doc, "//channel/lastBuildDate").InnerText())

	items := xmlquery.Find(doc, "//item")
	require.Len(t, items, 2)
	first := items[0]
	assert.Equal(t, "[changed] [High] OpenAI News", first.SelectElement("title").InnerText())
	assert.Equal(t, "https://openai.com/news/rss.xml", first.SelectElement("link").InnerText())
	assert.Equal(t, "x", first.SelectElement("guid").InnerText())
	assert.Equal(t, "false", first.SelectElement("guid").SelectAttr("isPermaLink"))
	assert.Equal(t, "Tue, 01 Apr 2025 09:00:00 +0000", first.SelectElement("pubDate").InnerText())
	assert.Equal(t, "Content changed bold & more", first.SelectElement("description").InnerText())

	assert.Equal(t, "news", first.SelectElement("category").InnerText())
	assert.Equal(t, "changewatch", xmlquery.FindOne(doc, "//channel/generator").InnerText())
}

func TestRenderer_RenderEmpty(t *testing.T) {
	r := NewRenderer(config.FeedConfig{}, zerolog.Nop())
	data, err := r.Render("Empty", nil)
	require.NoError(t, err)

	doc := parseFeed(t, data)
	assert.Nil(t, xmlquery.FindOne(doc, "//item"))
	assert.Nil(t, xmlquery.FindOne(doc, "//lastBuildDate"))
	assert.Equal(t, config.DefaultFeedDescription, xmlquery.FindOne(doc, "//channel/description").InnerText())
}

func TestItemTitle(t *testing.T) {
	ev := models.ChangeEvent{TargetID: "spec", Kind: models.KindFetchError}
	assert.Equal(t, "[fetch-error] spec", ItemTitle(ev))

	ev.TargetName = "OpenAPI"
	ev.Impact = models.ImpactBreaking
	assert.Equal(t, "[fetch-error] [Breaking] OpenAPI", ItemTitle(ev))

	ev.Kind = models.KindUnchanged
	ev.Degraded = true
	assert.Equal(t, "[degraded] [Breaking] OpenAPI", ItemTitle(ev))
}

func TestRenderer_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	r := NewRenderer(config.FeedConfig{OutputDir: dir}, zerolog.Nop())

	events := []models.ChangeEvent{
		event("i1", models.KindChanged, models.SeverityImportant, time.Hour),
		event("r1", models.KindNew, models.SeverityRoutine, 0),
	}
	require.NoError(t, r.Write(events))

	important, err := os.ReadFile(filepath.Join(dir, ImportantFileName))
	require.NoError(t, err)
	guids := xmlquery.Find(parseFeed(t, important), "//item/guid")
	require.Len(t, guids, 1)
	assert.Equal(t, "i1", guids[0].InnerText())

	all, err := os.ReadFile(filepath.Join(dir, AllFileName))
	require.NoError(t, err)
	assert.Len(t, xmlquery.Find(parseFeed(t, all), "//item"), 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
