package models

import (
	"fmt"
	"strings"
)

// Format tags the document type of a target and selects its normalizer.
type Format string

const (
	FormatHTML    Format = "html"
	FormatRSS     Format = "rss"
	FormatOpenAPI Format = "openapi"
	FormatPlain   Format = "plain"
)

// formatAliases maps accepted spellings (including the legacy normalize
// names rss_min and openapi_c14n_v1) onto the canonical format tags.
var formatAliases = map[string]Format{
	"html":            FormatHTML,
	"htm":             FormatHTML,
	"rss":             FormatRSS,
	"atom":            FormatRSS,
	"rss/atom":        FormatRSS,
	"rss_min":         FormatRSS,
	"openapi":         FormatOpenAPI,
	"openapi-yaml":    FormatOpenAPI,
	"openapi_yaml":    FormatOpenAPI,
	"openapi_c14n_v1": FormatOpenAPI,
	"plain":           FormatPlain,
	"text":            FormatPlain,
	"":                FormatPlain,
}

// ParseFormat resolves a configured format name.
func ParseFormat(s string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown document format %q", s)
	}
	return f, nil
}

// Impact is the editorial weight attached to a target.
type Impact string

const (
	ImpactBreaking Impact = "Breaking"
	ImpactHigh     Impact = "High"
	ImpactMedium   Impact = "Medium"
	ImpactLow      Impact = "Low"
)

// IsHigh reports whether the impact makes changes important by default.
func (i Impact) IsHigh() bool {
	switch strings.ToLower(string(i)) {
	case "breaking", "high":
		return true
	}
	return false
}

// Trigger names a condition that promotes a change to important.
type Trigger string

const (
	TriggerNew        Trigger = "new"
	TriggerEntryAdded Trigger = "entry_added"
	TriggerStructural Trigger = "structural"
	TriggerAny        Trigger = "any"
)

// Policy is the declarative classification and normalization rule set of
// a target.
type Policy struct {
	Default           Severity  `json:"default,omitempty" yaml:"default,omitempty" validate:"omitempty,severity"`
	ImportantOn       []Trigger `json:"important_on,omitempty" yaml:"important_on,omitempty" validate:"omitempty,dive,trigger"`
	Keywords          []string  `json:"keywords,omitempty" yaml:"keywords,omitempty" validate:"omitempty,dive,required"`
	SignificantFields []string  `json:"significant_fields,omitempty" yaml:"significant_fields,omitempty" validate:"omitempty,dive,oneof=id date"`
	IgnoreSelectors   []string  `json:"ignore_selectors,omitempty" yaml:"ignore_selectors,omitempty"`
	IgnorePaths       []string  `json:"ignore_paths,omitempty" yaml:"ignore_paths,omitempty"`
	IgnoreParams      []string  `json:"ignore_params,omitempty" yaml:"ignore_params,omitempty" validate:"omitempty,dive,required"`
	BodyLimit         int       `json:"body_limit,omitempty" yaml:"body_limit,omitempty" validate:"omitempty,min=0"`
}

// HasTrigger reports whether the policy lists t.
func (p Policy) HasTrigger(t Trigger) bool {
	for _, candidate := range p.ImportantOn {
		if candidate == t {
			return true
		}
	}
	return false
}

// Significant reports whether a normally volatile feed field is kept.
func (p Policy) Significant(field string) bool {
	for _, f := range p.SignificantFields {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	return false
}

// Target is one tracked document. Targets are immutable for a run.
type Target struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Name   string `json:"name" yaml:"name" validate:"required"`
	URL    string `json:"url" yaml:"url" validate:"required,url"`
	Format Format `json:"format" yaml:"format" validate:"docformat"`
	Impact Impact `json:"impact,omitempty" yaml:"impact,omitempty" validate:"omitempty,oneof=Breaking High Medium Low"`
	Policy Policy `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Key returns the stable identifier used as the state key.
func (t Target) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.URL
}

// DefaultSeverity returns the severity used when no trigger fires.
func (t Target) DefaultSeverity() Severity {
	if t.Policy.Default != "" {
		return t.Policy.Default
	}
	if t.Impact.IsHigh() {
		return SeverityImportant
	}
	return SeverityRoutine
}
