package config

import (
	"github.com/h-sim/ai-change-watcher/internal/models"
)

// DefaultTargets returns the built-in watch list used when the
// configuration file declares no targets.
func DefaultTargets() []models.Target {
	return []models.Target{
		{
			ID:     "openai-developer-changelog",
			Name:   "OpenAI Developer Changelog (RSS)",
			URL:    "https://developers.openai.com/changelog/rss.xml",
			Format: models.FormatRSS,
			Impact: models.ImpactHigh,
			Policy: models.Policy{
				ImportantOn: []models.Trigger{models.TriggerEntryAdded},
			},
		},
		{
			ID:     "openai-news",
			Name:   "OpenAI News (RSS)",
			URL:    "https://openai.com/news/rss.xml",
			Format: models.FormatRSS,
			Impact: models.ImpactMedium,
			Policy: models.Policy{
				Keywords: []string{"deprecat", "breaking change", "sunset"},
			},
		},
		{
			ID:     "openai-openapi-spec",
			Name:   "OpenAI OpenAPI Spec (YAML)",
			URL:    "https://app.stainless.com/api/spec/documented/openai/openapi.documented.yml",
			Format: models.FormatOpenAPI,
			Impact: models.ImpactBreaking,
			Policy: models.Policy{
				ImportantOn: []models.Trigger{models.TriggerStructural},
				Keywords:    []string{"deprecated"},
			},
		},
	}
}
