package differ

import (
	"strings"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffProcessor computes line diffs between canonical texts
type DiffProcessor struct {
	dmp           *diffmatchpatch.DiffMatchPatch
	maxLines      int
	maxLineLength int
}

// NewDiffProcessor creates a new diff processor
func NewDiffProcessor(maxLines, maxLineLength int) *DiffProcessor {
	return &DiffProcessor{
		dmp:           diffmatchpatch.New(),
		maxLines:      maxLines,
		maxLineLength: maxLineLength,
	}
}

// LineDiff is the full line-level difference of two texts
type LineDiff struct {
	Added   []string
	Removed []string
}

// ProcessDiff diffs old and new line by line
func (dp *DiffProcessor) ProcessDiff(oldText, newText string) LineDiff {
	chars1, chars2, lines := dp.dmp.DiffLinesToChars(terminate(oldText), terminate(newText))
	diffs := dp.dmp.DiffMain(chars1, chars2, false)
	diffs = dp.dmp.DiffCharsToLines(diffs, lines)

	var result LineDiff
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.Added = append(result.Added, splitLines(d.Text)...)
		case diffmatchpatch.DiffDelete:
			result.Removed = append(result.Removed, splitLines(d.Text)...)
		}
	}
	return result
}

// Summarize bounds a line diff to the first maxLines differing lines,
// removed lines first, each cut to maxLineLength runes.
func (dp *DiffProcessor) Summarize(ld LineDiff) *models.DiffSummary {
	summary := &models.DiffSummary{
		LinesAdded:   len(ld.Added),
		LinesRemoved: len(ld.Removed),
	}

	budget := dp.maxLines
	take := func(lines []string) []string {
		var out []string
		for _, line := range lines {
			if budget <= 0 {
				summary.Truncated = true
				break
			}
			out = append(out, dp.clip(line))
			budget--
		}
		return out
	}
	summary.Removed = take(ld.Removed)
	summary.Added = take(ld.Added)
	return summary
}

func (dp *DiffProcessor) clip(line string) string {
	if dp.maxLineLength <= 0 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= dp.maxLineLength {
		return line
	}
	return string(runes[:dp.maxLineLength]) + "..."
}

// terminate ends non-empty text with a newline so the last line compares
// equal to the same line followed by more content.
func terminate(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
