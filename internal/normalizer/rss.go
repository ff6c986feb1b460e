package normalizer

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/h-sim/ai-change-watcher/internal/models"
)

const lenientFeedReason = "lenient feed parse"

var (
	xmlDeclaration = regexp.MustCompile(`^\s*<\?xml[^>]*\?>`)
	controlChars   = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
	ampersands     = regexp.MustCompile(`&(?:#[0-9]+;|#[xX][0-9a-fA-F]+;|[A-Za-z][A-Za-z0-9]*;)?`)
	lenientEntry   = regexp.MustCompile(`(?is)<(?:item|entry)(?:\s[^>]*)?>(.*?)</(?:item|entry)\s*>`)
	cdataSection   = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	atomLinkTag    = regexp.MustCompile(`(?is)<link\b([^>]*)/?>`)
	hrefAttr       = regexp.MustCompile(`(?is)\bhref\s*=\s*["']([^"']*)["']`)
	relAttr        = regexp.MustCompile(`(?is)\brel\s*=\s*["']([^"']*)["']`)
)

var xmlEntities = map[string]bool{"amp": true, "lt": true, "gt": true, "quot": true, "apos": true}

var errNotAFeed = errors.New("document is not an RSS or Atom feed")

// feedEntry is one item of a feed as it appears in canonical text.
type feedEntry struct {
	Title string
	Link  string
	ID    string
	Date  string
	Body  string
}

// RSSNormalizer canonicalizes RSS 2.0, RSS 1.0 and Atom feeds into
// #ITEM blocks in feed order.
type RSSNormalizer struct{}

// NewRSSNormalizer creates an RSSNormalizer.
func NewRSSNormalizer() *RSSNormalizer {
	return &RSSNormalizer{}
}

func (n *RSSNormalizer) Format() models.Format { return models.FormatRSS }

// Normalize parses raw strictly, then after repairing control characters
// and bare ampersands, and finally with a lenient pattern extractor whose
// output is marked degraded.
func (n *RSSNormalizer) Normalize(raw string, opts Options) (Output, error) {
	raw = xmlDeclaration.ReplaceAllString(raw, "")

	entries, err := parseFeed(raw, opts)
	if err != nil && !errors.Is(err, errNotAFeed) {
		entries, err = parseFeed(repairXML(raw), opts)
	}
	if err == nil {
		return Output{Text: renderEntries(entries, opts)}, nil
	}

	entries = lenientEntries(raw, opts)
	if len(entries) == 0 {
		return Output{}, fmt.Errorf("feed parse failed: %w", err)
	}
	return Output{
		Text:           renderEntries(entries, opts),
		Degraded:       true,
		DegradedReason: lenientFeedReason,
	}, nil
}

func parseFeed(raw string, opts Options) ([]feedEntry, error) {
	doc, err := xmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	root := firstElement(doc)
	if root == nil {
		return nil, errNotAFeed
	}
	switch strings.ToLower(root.Data) {
	case "rss", "rdf", "feed", "channel":
	default:
		return nil, fmt.Errorf("%w: root element <%s>", errNotAFeed, root.Data)
	}

	nodes, err := xmlquery.QueryAll(doc, "//*[local-name()='item' or local-name()='entry']")
	if err != nil {
		return nil, err
	}

	entries := make([]feedEntry, 0, len(nodes))
	for _, node := range nodes {
		if opts.MaxItems > 0 && len(entries) >= opts.MaxItems {
			break
		}
		entries = append(entries, entryFromNode(node, opts))
	}
	return entries, nil
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func entryFromNode(node *xmlquery.Node, opts Options) feedEntry {
	fields := make(map[string]string)
	var textLink, altLink, anyLink string

	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		name := strings.ToLower(c.Data)
		if name == "link" {
			if href := strings.TrimSpace(c.SelectAttr("href")); href != "" {
				rel := strings.ToLower(strings.TrimSpace(c.SelectAttr("rel")))
				if altLink == "" && (rel == "" || rel == "alternate") {
					altLink = href
				}
				if anyLink == "" {
					anyLink = href
				}
			} else if textLink == "" {
				textLink = strings.TrimSpace(c.InnerText())
			}
			continue
		}
		if c.Prefix != "" && name != "encoded" && name != "date" {
			continue
		}
		if _, seen := fields[name]; !seen {
			fields[name] = c.InnerText()
		}
	}

	link := firstNonEmpty(textLink, altLink, anyLink)
	return buildEntry(
		collapseSpace(fields["title"]),
		link,
		firstNonEmpty(fields["guid"], fields["id"]),
		firstNonEmpty(fields["pubdate"], fields["updated"], fields["published"], fields["date"]),
		firstNonEmpty(fields["description"], fields["summary"], fields["content"], fields["encoded"]),
		opts,
	)
}

func buildEntry(title, link, id, date, body string, opts Options) feedEntry {
	entry := feedEntry{Title: title}
	if canonical, ok := CanonicalURL(link, opts.BaseURL, opts.IgnoreParams...); ok {
		entry.Link = canonical
	} else {
		entry.Link = collapseSpace(link)
	}
	if opts.KeepIDs {
		entry.ID = collapseSpace(id)
	}
	if opts.KeepDates {
		entry.Date = collapseSpace(date)
	}
	entry.Body = truncateRunes(htmlToText(body), opts.BodyLimit)
	return entry
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// repairXML removes control characters the XML grammar forbids, escapes
// bare ampersands and rewrites HTML named entities as character
// references.
func repairXML(raw string) string {
	raw = controlChars.ReplaceAllString(raw, "")
	return ampersands.ReplaceAllStringFunc(raw, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		if strings.HasPrefix(m, "&#") {
			return m
		}
		name := m[1 : len(m)-1]
		if xmlEntities[name] {
			return m
		}
		decoded := html.UnescapeString(m)
		if decoded == m {
			return "&amp;" + m[1:]
		}
		var b strings.Builder
		for _, r := range decoded {
			fmt.Fprintf(&b, "&#%d;", r)
		}
		return b.String()
	})
}

// lenientEntries extracts entries with patterns when the document is not
// well-formed enough for any XML parse.
func lenientEntries(raw string, opts Options) []feedEntry {
	var entries []feedEntry
	for _, m := range lenientEntry.FindAllStringSubmatch(raw, -1) {
		if opts.MaxItems > 0 && len(entries) >= opts.MaxItems {
			break
		}
		block := m[1]
		link := lenientText(block, "link")
		if link == "" {
			link = lenientAtomLink(block)
		}
		entries = append(entries, buildEntry(
			collapseSpace(lenientText(block, "title")),
			link,
			firstNonEmpty(lenientText(block, "guid"), lenientText(block, "id")),
			firstNonEmpty(lenientText(block, "pubDate"), lenientText(block, "updated"),
				lenientText(block, "published"), lenientText(block, "dc:date")),
			firstNonEmpty(lenientText(block, "description"), lenientText(block, "summary"),
				lenientText(block, "content"), lenientText(block, "content:encoded")),
			opts,
		))
	}
	return entries
}

var lenientTagCache = map[string]*regexp.Regexp{}

func lenientTagPattern(tag string) *regexp.Regexp {
	if re, ok := lenientTagCache[tag]; ok {
		return re
	}
	quoted := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`(?is)<` + quoted + `(?:\s[^>]*)?>(.*?)</` + quoted + `\s*>`)
}

func init() {
	for _, tag := range []string{
		"title", "link", "guid", "id", "pubDate", "updated", "published", "dc:date",
		"description", "summary", "content", "content:encoded",
	} {
		lenientTagCache[tag] = lenientTagPattern(tag)
	}
}

func lenientText(block, tag string) string {
	m := lenientTagPattern(tag).FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	text := cdataSection.ReplaceAllString(m[1], "$1")
	return strings.TrimSpace(html.UnescapeString(text))
}

func lenientAtomLink(block string) string {
	var fallback string
	for _, m := range atomLinkTag.FindAllStringSubmatch(block, -1) {
		href := hrefAttr.FindStringSubmatch(m[1])
		if href == nil {
			continue
		}
		rel := relAttr.FindStringSubmatch(m[1])
		if rel == nil || strings.EqualFold(rel[1], "alternate") {
			return html.UnescapeString(href[1])
		}
		if fallback == "" {
			fallback = html.UnescapeString(href[1])
		}
	}
	return fallback
}

func renderEntries(entries []feedEntry, opts Options) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString("#ITEM\n")
		b.WriteString("title: " + e.Title + "\n")
		b.WriteString("link: " + e.Link + "\n")
		if opts.KeepIDs {
			b.WriteString("id: " + e.ID + "\n")
		}
		if opts.KeepDates {
			b.WriteString("date: " + e.Date + "\n")
		}
		b.WriteString("body: " + e.Body + "\n")
	}
	return normalizeText(b.String())
}

// FeedEntryKeys returns the title and link of every #ITEM block of
// canonical feed text, in order.
func FeedEntryKeys(canonical string) []string {
	var keys []string
	var title, link string
	inItem := false
	emit := func() {
		if inItem {
			keys = append(keys, title+"\x00"+link)
		}
	}
	for _, line := range strings.Split(canonical, "\n") {
		switch {
		case line == "#ITEM":
			emit()
			inItem, title, link = true, "", ""
		case strings.HasPrefix(line, "title:"):
			title = strings.TrimSpace(strings.TrimPrefix(line, "title:"))
		case strings.HasPrefix(line, "link:"):
			link = strings.TrimSpace(strings.TrimPrefix(line, "link:"))
		}
	}
	emit()
	return keys
}
