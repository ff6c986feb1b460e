package normalizer

import (
	"strings"
	"testing"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestPlainNormalizer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "collapses whitespace and drops blank lines",
			input: "  Hello   World \r\n\r\n\tSecond line  \n",
			want:  "Hello World\nSecond line",
		},
		{
			name:  "removes zero-width characters",
			input: "Ze\u200bro\u200c wi\u200ddth\u2060\ufeff",
			want:  "Zero width",
		},
		{
			name:  "applies NFC",
			input: "cafe\u0301",
			want:  "caf\u00e9",
		},
		{
			name:  "old mac line endings",
			input: "a\rb",
			want:  "a\nb",
		},
		{
			name:  "empty",
			input: " \n\t\n",
			want:  "",
		},
	}

	n := NewPlainNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(tt.input, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Text)
			assert.False(t, out.Degraded)
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		base   string
		want   string
		ignore []string
		wantOK bool
	}{
		{
			name:   "resolves relative and strips tracking params",
			raw:    "/docs/models?utm_source=x&id=3&fbclid=abc#top",
			base:   "https://Example.com/changelog",
			want:   "https://example.com/docs/models?id=3",
			wantOK: true,
		},
		{
			name:   "sorts remaining params and keeps versions",
			raw:    "HTTPS://EXAMPLE.com/a?b=2&a=1&gclid=9&ver=4&v=2",
			want:   "https://example.com/a?a=1&b=2&v=2&ver=4",
			wantOK: true,
		},
		{
			name:   "drops empty query marker",
			raw:    "https://example.com/a?utm_medium=email",
			want:   "https://example.com/a",
			wantOK: true,
		},
		{
			name:   "configured params dropped",
			raw:    "https://example.com/a?ts=17&SID=4&page=2",
			ignore: []string{"ts", "sid"},
			want:   "https://example.com/a?page=2",
			wantOK: true,
		},
		{name: "fragment only", raw: "#section"},
		{name: "javascript", raw: "javascript:void(0)"},
		{name: "empty", raw: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalURL(tt.raw, tt.base, tt.ignore...)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

const changelogPage = `<!DOCTYPE html>
<html><head><title>Changelog</title><style>p{}</style></head>
<body>
<script>var build = "abc123";</script>
<h1>Changelog</h1>
<p>New <b>model</b> released. <a href="/docs/models?utm_source=x&amp;id=3#top">Read more</a></p>
<p class="stamp">Updated <time datetime="2025-01-01">Jan 1</time></p>
<div class="ad">Buy now</div>
<ul><li>One</li><li>Two</li></ul>
</body></html>`

func TestHTMLNormalizer(t *testing.T) {
	opts := Options{BaseURL: "https://Example.com/changelog", IgnoreSelectors: []string{".ad"}}

	out, err := NewHTMLNormalizer().Normalize(changelogPage, opts)
	require.NoError(t, err)

	want := strings.Join([]string{
		"Changelog",
		"New model released. Read more <https://example.com/docs/models?id=3>",
		"Updated Jan 1",
		"One",
		"Two",
	}, "\n")
	assert.Equal(t, want, out.Text)
}

func TestHTMLNormalizer_IgnoresVolatileMarkup(t *testing.T) {
	opts := Options{BaseURL: "https://example.com/"}
	a := `<html><body><div><p>Release notes</p><p>Build <time>10:01</time></p>
		<script>nonce=1</script><a href="/x?utm_source=a">Docs</a></div></body></html>`
	b := `<html>
<body>
  <div>
    <p>Release    notes</p>
    <p>Build <time>10:01</time></p>
    <script>nonce=2</script>
    <a href="/x?utm_source=b#later">Docs</a>
  </div>
</body>
</html>`

	n := NewHTMLNormalizer()
	outA, err := n.Normalize(a, opts)
	require.NoError(t, err)
	outB, err := n.Normalize(b, opts)
	require.NoError(t, err)

	assert.Equal(t, outA.Text, outB.Text)
	assert.Equal(t, "Release notes\nBuild 10:01\nDocs <https://example.com/x>", outA.Text)
}

func TestHTMLNormalizer_DateAndInsertionChangesAreDetected(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
	}{
		{
			name:   "time element text",
			before: `<p>The v1 API shuts down on <time>June 1</time>.</p>`,
			after:  `<p>The v1 API shuts down on <time>September 1</time>.</p>`,
		},
		{
			name:   "element with datetime attribute",
			before: `<p>Limit is <ins datetime="2025-01-01">100</ins> rpm</p>`,
			after:  `<p>Limit is <ins datetime="2025-01-01">10</ins> rpm</p>`,
		},
	}

	r := newTestRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := models.Target{ID: "page", URL: "https://example.com/", Format: models.FormatHTML}
			before := r.Canonicalize(target, []byte(tt.before))
			after := r.Canonicalize(target, []byte(tt.after))

			assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
			assert.NotEqual(t, before.Text, after.Text)
		})
	}

	out, err := NewHTMLNormalizer().Normalize(`<p>Limit is <ins datetime="2025-01-01">100</ins> rpm</p>`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Limit is 100 rpm", out.Text)
}

func TestHTMLNormalizer_IgnoreSelectorsSuppressDates(t *testing.T) {
	opts := Options{IgnoreSelectors: []string{"time"}}
	n := NewHTMLNormalizer()

	a, err := n.Normalize(`<p>Updated <time>10:01</time></p>`, opts)
	require.NoError(t, err)
	b, err := n.Normalize(`<p>Updated <time>10:02</time></p>`, opts)
	require.NoError(t, err)

	assert.Equal(t, "Updated", a.Text)
	assert.Equal(t, a.Text, b.Text)
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "Body two", htmlToText("<p>Body <b>two</b></p>"))
	assert.Equal(t, "Hello world", htmlToText("Hello <br> world"))
	assert.Equal(t, "plain text", htmlToText("  plain\n text "))
	assert.Equal(t, "Short & sweet", htmlToText("Short & sweet"))
}

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Feed</title>
<lastBuildDate>Mon, 01 Jan 2025 00:00:00 GMT</lastBuildDate>
<item>
  <title>Second</title>
  <link>https://example.com/b?utm_medium=rss</link>
  <guid>b-1</guid>
  <pubDate>Tue, 02 Jan 2025 00:00:00 GMT</pubDate>
  <description>&lt;p&gt;Body &lt;b&gt;two&lt;/b&gt;&lt;/p&gt;</description>
</item>
<item>
  <title>First</title>
  <link>https://example.com/a</link>
  <guid>a-1</guid>
  <pubDate>Mon, 01 Jan 2025 00:00:00 GMT</pubDate>
  <description><![CDATA[<p>Body one</p>]]></description>
</item>
</channel>
</rss>`

func TestRSSNormalizer_FeedOrderWithoutVolatileFields(t *testing.T) {
	out, err := newTestRegistry().Normalize(models.FormatRSS, rssFeed, Options{})
	require.NoError(t, err)

	want := strings.Join([]string{
		"#ITEM",
		"title: Second",
		"link: https://example.com/b",
		"body: Body two",
		"#ITEM",
		"title: First",
		"link: https://example.com/a",
		"body: Body one",
	}, "\n")
	assert.Equal(t, want, out.Text)
	assert.False(t, out.Degraded)
	assert.NotContains(t, out.Text, "lastBuildDate")
}

func TestRSSNormalizer_SignificantFields(t *testing.T) {
	out, err := newTestRegistry().Normalize(models.FormatRSS, rssFeed, Options{KeepIDs: true, KeepDates: true})
	require.NoError(t, err)

	assert.Contains(t, out.Text, "id: b-1\ndate: Tue, 02 Jan 2025 00:00:00 GMT\nbody: Body two")
}

func TestRSSNormalizer_VolatileFieldsDoNotChangeFingerprint(t *testing.T) {
	later := strings.NewReplacer(
		"Tue, 02 Jan 2025", "Wed, 03 Jan 2025",
		"b-1", "b-2",
		"<lastBuildDate>Mon", "<lastBuildDate>Fri",
	).Replace(rssFeed)

	r := newTestRegistry()
	target := models.Target{ID: "feed", URL: "https://example.com/feed", Format: models.FormatRSS}
	a := r.Canonicalize(target, []byte(rssFeed))
	b := r.Canonicalize(target, []byte(later))

	assert.Equal(t, a.Fingerprint, b.Fingerprint)

	target.Policy.SignificantFields = []string{"date"}
	c := r.Canonicalize(target, []byte(rssFeed))
	d := r.Canonicalize(target, []byte(later))
	assert.NotEqual(t, c.Fingerprint, d.Fingerprint)
}

func TestRSSNormalizer_Atom(t *testing.T) {
	feed := `<feed xmlns="http://www.w3.org/2005/Atom">
<title>Blog</title>
<updated>2025-01-01T00:00:00Z</updated>
<entry>
  <title>Atom entry</title>
  <link rel="self" href="https://example.com/self"/>
  <link rel="alternate" href="https://example.com/post#frag"/>
  <id>urn:1</id>
  <updated>2025-01-01T00:00:00Z</updated>
  <summary>Short &amp; sweet</summary>
</entry>
</feed>`

	out, err := newTestRegistry().Normalize(models.FormatRSS, feed, Options{KeepIDs: true})
	require.NoError(t, err)
	assert.Equal(t, "#ITEM\ntitle: Atom entry\nlink: https://example.com/post\nid: urn:1\nbody: Short & sweet", out.Text)
}

func TestRSSNormalizer_RepairsMalformedXML(t *testing.T) {
	feed := "<rss><channel><item><title>Fish & Chips&nbsp;now</title>" +
		"<link>https://example.com/f</link><description>x\x01y</description></item></channel></rss>"

	out, err := newTestRegistry().Normalize(models.FormatRSS, feed, Options{})
	require.NoError(t, err)
	assert.False(t, out.Degraded)
	assert.Equal(t, "#ITEM\ntitle: Fish & Chips now\nlink: https://example.com/f\nbody: xy", out.Text)
}

func TestRSSNormalizer_LenientFallback(t *testing.T) {
	feed := `<rss><channel><item><title>Broken</title><link>https://example.com/x</link>` +
		`<description>Hello <br> world</description></item></channel>`

	out, err := newTestRegistry().Normalize(models.FormatRSS, feed, Options{})
	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Equal(t, "lenient feed parse", out.DegradedReason)
	assert.Equal(t, "#ITEM\ntitle: Broken\nlink: https://example.com/x\nbody: Hello world", out.Text)
}

func TestRSSNormalizer_Limits(t *testing.T) {
	var b strings.Builder
	b.WriteString("<rss><channel>")
	for i := 0; i < 5; i++ {
		b.WriteString("<item><title>t</title><description>abcdefghij</description></item>")
	}
	b.WriteString("</channel></rss>")

	out, err := NewRSSNormalizer().Normalize(b.String(), Options{MaxItems: 3, BodyLimit: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out.Text, "#ITEM"))
	assert.Contains(t, out.Text, "body: abcd\n")
}

func TestRSSNormalizer_NotAFeed(t *testing.T) {
	_, err := NewRSSNormalizer().Normalize("<html><body><p>hi</p></body></html>", Options{})
	assert.Error(t, err)
}

func TestFeedEntryKeys(t *testing.T) {
	text := "#ITEM\ntitle: A\nlink: https://example.com/a\nbody: x\n#ITEM\ntitle:\nlink: https://example.com/b\nbody: y"
	assert.Equal(t, []string{
		"A\x00https://example.com/a",
		"\x00https://example.com/b",
	}, FeedEntryKeys(text))
	assert.Empty(t, FeedEntryKeys("no items here"))
}

const openAPIYAML = `openapi: 3.0.0
info:
  title: API   # the public API
  version: 2025-01-01
servers:
  - url: https://b.example.com
  - url: https://a.example.com
paths:
  /models:
    get:
      responses:
        200:
          description: ok
`

const openAPIJSON = `{"paths":{"/models":{"get":{"responses":{"200":{"description":"ok"}}}}},
"servers":[{"url":"https://a.example.com"},{"url":"https://b.example.com"}],
"info":{"version":"9.9","title":"API"},"openapi":"3.0.0"}`

const openAPICanonical = `{
  "info": {
    "title": "API"
  },
  "openapi": "3.0.0",
  "paths": {
    "/models": {
      "get": {
        "responses": {
          "200": {
            "description": "ok"
          }
        }
      }
    }
  },
  "servers": [
    {
      "url": "https://a.example.com"
    },
    {
      "url": "https://b.example.com"
    }
  ]
}
`

func TestOpenAPINormalizer_Deterministic(t *testing.T) {
	r := newTestRegistry()

	fromYAML, err := r.Normalize(models.FormatOpenAPI, openAPIYAML, Options{})
	require.NoError(t, err)
	fromJSON, err := r.Normalize(models.FormatOpenAPI, openAPIJSON, Options{})
	require.NoError(t, err)

	assert.Equal(t, openAPICanonical, fromYAML.Text)
	assert.Equal(t, fromYAML.Text, fromJSON.Text)

	again, err := r.Normalize(models.FormatOpenAPI, openAPIYAML, Options{})
	require.NoError(t, err)
	assert.Equal(t, fromYAML.Text, again.Text)
}

func TestOpenAPINormalizer_IgnorePathsOverride(t *testing.T) {
	out, err := newTestRegistry().Normalize(models.FormatOpenAPI, openAPIYAML, Options{IgnorePaths: []string{"servers", "paths.*.get"}})
	require.NoError(t, err)

	assert.Contains(t, out.Text, `"version": "2025-01-01"`)
	assert.NotContains(t, out.Text, "servers")
	assert.NotContains(t, out.Text, `"get"`)
	assert.Contains(t, out.Text, `"/models": {}`)
}

func TestOpenAPINormalizer_ScalarsAliasesAndMerges(t *testing.T) {
	doc := `a: 1
b: 1.5
c: true
d: null
e: "1"
f: .inf
g: <b>&</b>
anchors: &x {k: v}
ref: *x
merged:
  <<: *x
  k2: v2
  k: own
`
	out, err := NewOpenAPINormalizer().Normalize(doc, Options{})
	require.NoError(t, err)

	for _, line := range []string{
		`"a": 1,`,
		`"b": 1.5,`,
		`"c": true,`,
		`"d": null,`,
		`"e": "1",`,
		`"f": ".inf",`,
		`"g": "<b>&</b>",`,
	} {
		assert.Contains(t, out.Text, line)
	}
	assert.Contains(t, out.Text, "\"ref\": {\n    \"k\": \"v\"\n  }")
	assert.Contains(t, out.Text, "\"merged\": {\n    \"k\": \"own\",\n    \"k2\": \"v2\"\n  }")
}

func TestOpenAPINormalizer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "malformed yaml", input: "paths: [unclosed\n"},
		{name: "empty", input: ""},
		{name: "scalar document", input: "just some text"},
	}

	n := NewOpenAPINormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.input, Options{})
			assert.Error(t, err)
		})
	}
}

func TestOpenAPIOperations(t *testing.T) {
	canonical := `{"paths": {"/b": {"post": {}, "parameters": []}, "/a": {"get": {}, "DELETE": {}}}}`
	assert.Equal(t, []string{"DELETE /a", "GET /a", "POST /b"}, OpenAPIOperations(canonical))
	assert.Nil(t, OpenAPIOperations("not json"))
	assert.Nil(t, OpenAPIOperations(`{"info": {}}`))
}

func TestRegistry_CanonicalizeDegradesToPlain(t *testing.T) {
	r := newTestRegistry()
	target := models.Target{ID: "spec", URL: "https://example.com/openapi.yaml", Format: models.FormatOpenAPI}

	snap := r.Canonicalize(target, []byte("paths: [unclosed\n  more text"))

	assert.True(t, snap.Degraded)
	assert.Contains(t, snap.DegradedReason, "openapi")
	assert.Equal(t, "paths: [unclosed\nmore text", snap.Text)
	assert.Equal(t, models.Fingerprint(snap.Text), snap.Fingerprint)
}

func TestRegistry_CanonicalizeLenientFeedIsDegraded(t *testing.T) {
	target := models.Target{ID: "feed", URL: "https://example.com/feed", Format: models.FormatRSS}
	body := `<rss><channel><item><title>T</title><description>a <br> b</description></item>`

	snap := newTestRegistry().Canonicalize(target, []byte(body))
	assert.True(t, snap.Degraded)
	assert.Equal(t, "lenient feed parse", snap.DegradedReason)
	assert.True(t, strings.HasPrefix(snap.Text, "#ITEM"))
}

func TestRegistry_UnknownFormat(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Normalize(models.Format("pdf"), "x", Options{})
	assert.Error(t, err)
	assert.Equal(t, []models.Format{models.FormatHTML, models.FormatOpenAPI, models.FormatPlain, models.FormatRSS}, r.Formats())
}

func TestOptionsFor(t *testing.T) {
	target := models.Target{
		URL: "https://example.com",
		Policy: models.Policy{
			SignificantFields: []string{"id"},
			IgnorePaths:       []string{"info.title"},
			IgnoreParams:      []string{"ts"},
		},
	}
	opts := OptionsFor(target)

	assert.Equal(t, "https://example.com", opts.BaseURL)
	assert.True(t, opts.KeepIDs)
	assert.False(t, opts.KeepDates)
	assert.Equal(t, DefaultBodyLimit, opts.BodyLimit)
	assert.Equal(t, DefaultMaxItems, opts.MaxItems)
	assert.Equal(t, []string{"info.title"}, opts.IgnorePaths)
	assert.Equal(t, []string{"ts"}, opts.IgnoreParams)

	assert.Equal(t, DefaultIgnorePaths, OptionsFor(models.Target{}).IgnorePaths)
}
