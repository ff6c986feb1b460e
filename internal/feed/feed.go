// Package feed renders classified change events as RSS 2.0 documents.
package feed

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gorilla/feeds"
	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

const (
	ImportantFileName = "important.xml"
	AllFileName       = "all.xml"

	defaultBaseURL = "http://localhost/"
	generator      = "changewatch"
	degradedLabel  = "degraded"
)

// Renderer writes the important and all feeds
type Renderer struct {
	cfg         config.FeedConfig
	fileManager *common.FileManager
	sanitizer   *bluemonday.Policy
	getenv      func(string) string
	logger      zerolog.Logger
}

// NewRenderer creates a feed renderer
func NewRenderer(cfg config.FeedConfig, logger zerolog.Logger) *Renderer {
	if cfg.OutputDir == "" {
		cfg.OutputDir = config.DefaultFeedOutputDir
	}
	if cfg.Title == "" {
		cfg.Title = config.DefaultFeedTitle
	}
	if cfg.Description == "" {
		cfg.Description = config.DefaultFeedDescription
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = config.DefaultFeedMaxItems
	}
	return &Renderer{
		cfg:         cfg,
		fileManager: common.NewFileManager(logger),
		sanitizer:   bluemonday.StrictPolicy(),
		getenv:      os.Getenv,
		logger:      logger.With().Str("component", "FeedRenderer").Logger(),
	}
}

// BaseURL resolves the channel link: configured site URL, then SITE_URL,
// then the GitHub Pages URL of GITHUB_REPOSITORY, then localhost.
func (r *Renderer) BaseURL() string {
	if site := strings.TrimSpace(r.cfg.SiteURL); site != "" {
		return strings.TrimRight(site, "/") + "/"
	}
	if site := strings.TrimSpace(r.getenv("SITE_URL")); site != "" {
		return strings.TrimRight(site, "/") + "/"
	}
	if repo := strings.TrimSpace(r.getenv("GITHUB_REPOSITORY")); repo != "" {
		if owner, name, ok := strings.Cut(repo, "/"); ok && owner != "" && name != "" {
			return fmt.Sprintf("https://%s.github.io/%s/", owner, name)
		}
	}
	return defaultBaseURL
}

// Collect gathers feed entries: the committed history of every record plus
// the current run's fetch errors and still-degraded unchanged targets,
// newest first.
func Collect(records []models.StateRecord, current *models.RunResult) []models.ChangeEvent {
	seen := make(map[string]bool)
	var events []models.ChangeEvent
	add := func(ev models.ChangeEvent) {
		if !ev.Reportable() || seen[ev.ID] {
			return
		}
		seen[ev.ID] = true
		events = append(events, ev)
	}

	for _, rec := range records {
		for _, ev := range rec.History {
			add(ev)
		}
	}
	if current != nil {
		for _, ev := range current.Events {
			if !ev.Kind.Persisted() {
				add(ev)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
	return events
}

// Write renders both feeds from events into the output directory.
func (r *Renderer) Write(events []models.ChangeEvent) error {
	var important []models.ChangeEvent
	for _, ev := range events {
		if ev.Severity == models.SeverityImportant {
			important = append(important, ev)
		}
	}

	outputs := []struct {
		name   string
		title  string
		events []models.ChangeEvent
	}{
		{ImportantFileName, r.cfg.Title + " (important)", important},
		{AllFileName, r.cfg.Title, events},
	}
	for _, f := range outputs {
		data, err := r.Render(f.title, f.events)
		if err != nil {
			return common.WrapError(err, "failed to render "+f.name)
		}
		path := filepath.Join(r.cfg.OutputDir, f.name)
		if err := r.fileManager.WriteFileAtomic(path, data, 0644); err != nil {
			return common.WrapError(err, "failed to write "+f.name)
		}
		r.logger.Info().Str("path", path).Int("items", min(len(f.events), r.cfg.MaxItems)).Msg("Feed written")
	}
	return nil
}

// Render returns the RSS document of events, capped at the configured
// item limit. Events are expected newest first.
func (r *Renderer) Render(title string, events []models.ChangeEvent) ([]byte, error) {
	if len(events) > r.cfg.MaxItems {
		events = events[:r.cfg.MaxItems]
	}

	f := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: r.BaseURL()},
		Description: r.cfg.Description,
	}
	if len(events) > 0 {
		f.Updated = events[0].Timestamp.UTC()
	}
	for _, ev := range events {
		f.Items = append(f.Items, &feeds.Item{
			Title:       ItemTitle(ev),
			Link:        &feeds.Link{Href: ev.TargetURL},
			Id:          ev.ID,
			Created:     ev.Timestamp.UTC(),
			Description: r.sanitize(ev.Description),
		})
	}

	channel := (&feeds.Rss{Feed: f}).RssFeed()
	channel.Generator = generator
	for i, item := range channel.Items {
		item.Guid = &feeds.RssGuid{Id: events[i].ID, IsPermaLink: "false"}
		item.Category = events[i].TargetID
	}

	doc, err := feeds.ToXML(channel)
	if err != nil {
		return nil, err
	}
	return []byte(doc + "\n"), nil
}

// sanitize strips markup from text that may quote fetched content. The
// policy escapes entities, which the XML encoder escapes again.
func (r *Renderer) sanitize(text string) string {
	return html.UnescapeString(r.sanitizer.Sanitize(text))
}

// ItemTitle formats "[kind] [impact] name". An unchanged target whose
// parse is degraded is labelled degraded.
func ItemTitle(ev models.ChangeEvent) string {
	name := ev.TargetName
	if name == "" {
		name = ev.TargetID
	}
	kind := string(ev.Kind)
	if ev.Kind == models.KindUnchanged && ev.Degraded {
		kind = degradedLabel
	}
	if ev.Impact == "" {
		return fmt.Sprintf("[%s] %s", kind, name)
	}
	return fmt.Sprintf("[%s] [%s] %s", kind, ev.Impact, name)
}
