package normalizer

import (
	"strings"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"golang.org/x/text/unicode/norm"
)

var zeroWidth = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\ufeff", "",
)

// PlainNormalizer canonicalizes free text line by line.
type PlainNormalizer struct{}

// NewPlainNormalizer creates a PlainNormalizer.
func NewPlainNormalizer() *PlainNormalizer {
	return &PlainNormalizer{}
}

func (n *PlainNormalizer) Format() models.Format { return models.FormatPlain }

// Normalize removes zero-width characters, applies NFC, collapses
// whitespace runs within each line and drops blank lines.
func (n *PlainNormalizer) Normalize(raw string, _ Options) (Output, error) {
	return Output{Text: normalizeText(raw)}, nil
}

func normalizeText(s string) string {
	s = zeroWidth.Replace(s)
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if collapsed := collapseSpace(line); collapsed != "" {
			out = append(out, collapsed)
		}
	}
	return strings.Join(out, "\n")
}

// collapseSpace trims s and joins its words with single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most limit runes.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
