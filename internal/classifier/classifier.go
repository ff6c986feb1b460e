// Package classifier assigns severities to change events from each
// target's declarative policy.
package classifier

import (
	"fmt"
	"strings"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/h-sim/ai-change-watcher/internal/normalizer"
	"github.com/rs/zerolog"
)

// Change is the material a decision is made from.
type Change struct {
	Event    models.ChangeEvent
	Added    []string
	Previous string
	Current  string
}

// Classifier applies target policies to change events
type Classifier struct {
	logger zerolog.Logger
}

// NewClassifier creates a new classifier
func NewClassifier(logger zerolog.Logger) *Classifier {
	return &Classifier{
		logger: logger.With().Str("component", "Classifier").Logger(),
	}
}

// Classify returns the event with its severity set. For new and changed
// events the deciding reason is appended to the description.
func (c *Classifier) Classify(target models.Target, change Change) models.ChangeEvent {
	ev := change.Event

	switch ev.Kind {
	case models.KindUnchanged:
		ev.Severity = models.SeverityNone
		return ev
	case models.KindFetchError:
		ev.Severity = models.SeverityRoutine
		return ev
	}

	severity, reason := c.decide(target, change)
	ev.Severity = severity
	ev.Description = appendReason(ev.Description, reason)

	c.logger.Debug().
		Str("target", target.Key()).
		Str("kind", string(ev.Kind)).
		Str("severity", string(severity)).
		Str("reason", reason).
		Msg("Classified change")
	return ev
}

func (c *Classifier) decide(target models.Target, change Change) (models.Severity, string) {
	policy := target.Policy

	if policy.HasTrigger(models.TriggerAny) {
		return models.SeverityImportant, "trigger:any"
	}
	if change.Event.Kind == models.KindNew && policy.HasTrigger(models.TriggerNew) {
		return models.SeverityImportant, "trigger:new"
	}
	if policy.HasTrigger(models.TriggerEntryAdded) && entryAdded(change) {
		return models.SeverityImportant, "trigger:entry_added"
	}
	if policy.HasTrigger(models.TriggerStructural) && structuralChange(change) {
		return models.SeverityImportant, "trigger:structural"
	}
	if keyword, ok := matchKeyword(policy.Keywords, change.Added); ok {
		return models.SeverityImportant, "keyword:" + keyword
	}
	return target.DefaultSeverity(), "default"
}

// entryAdded reports whether the current feed holds an entry the previous
// one did not. A first snapshot with entries counts as added.
func entryAdded(change Change) bool {
	previous := make(map[string]bool)
	for _, key := range normalizer.FeedEntryKeys(change.Previous) {
		previous[key] = true
	}
	for _, key := range normalizer.FeedEntryKeys(change.Current) {
		if !previous[key] {
			return true
		}
	}
	return false
}

// structuralChange reports whether the set of API operations differs. New
// targets have no previous operations, so any operation is a change.
func structuralChange(change Change) bool {
	before := normalizer.OpenAPIOperations(change.Previous)
	after := normalizer.OpenAPIOperations(change.Current)
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i] != after[i] {
			return true
		}
	}
	return false
}

func matchKeyword(keywords, added []string) (string, bool) {
	for _, keyword := range keywords {
		needle := strings.ToLower(strings.TrimSpace(keyword))
		if needle == "" {
			continue
		}
		for _, line := range added {
			if strings.Contains(strings.ToLower(line), needle) {
				return keyword, true
			}
		}
	}
	return "", false
}

func appendReason(description, reason string) string {
	suffix := fmt.Sprintf("[%s]", reason)
	if description == "" {
		return suffix
	}
	return description + " " + suffix
}
