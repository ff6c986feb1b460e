package normalizer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"golang.org/x/net/html"
)

// removedSelectors never carry document content. Dates shown in the page
// are content; targets suppress them through ignore_selectors.
var removedSelectors = []string{
	"script", "style", "noscript", "template", "svg", "iframe", "head",
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "caption": true, "dd": true, "details": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "html": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "summary": true,
	"table": true, "tbody": true, "tfoot": true, "thead": true, "tr": true,
	"ul": true,
}

// HTMLNormalizer canonicalizes web pages into one line per block element.
type HTMLNormalizer struct{}

// NewHTMLNormalizer creates an HTMLNormalizer.
func NewHTMLNormalizer() *HTMLNormalizer {
	return &HTMLNormalizer{}
}

func (n *HTMLNormalizer) Format() models.Format { return models.FormatHTML }

func (n *HTMLNormalizer) Normalize(raw string, opts Options) (Output, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Output{}, err
	}

	doc.Find(strings.Join(removedSelectors, ", ")).Remove()
	for _, sel := range opts.IgnoreSelectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			doc.Find(sel).Remove()
		}
	}

	w := &lineWriter{baseURL: opts.BaseURL, ignoreParams: opts.IgnoreParams}
	for _, node := range doc.Selection.Nodes {
		w.walk(node, false)
	}
	w.flush()

	return Output{Text: normalizeText(strings.Join(w.lines, "\n"))}, nil
}

// htmlToText flattens an HTML fragment to a single line.
func htmlToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapseSpace(fragment)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type: html.ElementNode,
		Data: "div",
	})
	if err != nil {
		return collapseSpace(fragment)
	}
	w := &lineWriter{}
	for _, node := range nodes {
		w.walk(node, false)
	}
	w.flush()
	return collapseSpace(strings.Join(w.lines, " "))
}

// lineWriter accumulates inline text and breaks lines at block
// boundaries.
type lineWriter struct {
	baseURL      string
	ignoreParams []string
	lines        []string
	current      strings.Builder
}

func (w *lineWriter) write(s string) {
	w.current.WriteString(s)
}

func (w *lineWriter) flush() {
	if line := collapseSpace(w.current.String()); line != "" {
		w.lines = append(w.lines, line)
	}
	w.current.Reset()
}

func (w *lineWriter) walk(n *html.Node, inPre bool) {
	switch n.Type {
	case html.TextNode:
		if !inPre {
			w.write(n.Data)
			return
		}
		parts := strings.Split(n.Data, "\n")
		for i, part := range parts {
			if i > 0 {
				w.flush()
			}
			w.write(part)
		}
		return
	case html.ElementNode:
	case html.DocumentNode:
		w.walkChildren(n, inPre)
		return
	default:
		return
	}

	switch n.Data {
	case "br":
		w.flush()
		return
	case "a":
		if w.writeLink(n) {
			return
		}
	case "td", "th":
		w.write(" ")
		w.walkChildren(n, inPre)
		w.write(" ")
		return
	case "img":
		return
	}

	if blockElements[n.Data] {
		w.flush()
		w.walkChildren(n, inPre || n.Data == "pre")
		w.flush()
		return
	}
	w.walkChildren(n, inPre)
}

func (w *lineWriter) walkChildren(n *html.Node, inPre bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, inPre)
	}
}

// writeLink renders an anchor as "text <href>". It reports false when the
// anchor has no usable target, in which case its children are walked as
// plain inline content.
func (w *lineWriter) writeLink(n *html.Node) bool {
	href, ok := CanonicalURL(attr(n, "href"), w.baseURL, w.ignoreParams...)
	if !ok {
		return false
	}
	text := collapseSpace(nodeText(n))
	w.write(" ")
	if text != "" {
		w.write(text + " ")
	}
	w.write("<" + href + "> ")
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}
