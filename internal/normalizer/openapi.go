package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/h-sim/ai-change-watcher/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	maxYAMLDepth = 256
	maxYAMLNodes = 1_000_000
)

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// OpenAPINormalizer canonicalizes OpenAPI documents (YAML or JSON) into
// sorted-key, two-space indented JSON.
type OpenAPINormalizer struct{}

// NewOpenAPINormalizer creates an OpenAPINormalizer.
func NewOpenAPINormalizer() *OpenAPINormalizer {
	return &OpenAPINormalizer{}
}

func (n *OpenAPINormalizer) Format() models.Format { return models.FormatOpenAPI }

func (n *OpenAPINormalizer) Normalize(raw string, opts Options) (Output, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &root); err != nil {
		return Output{}, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return Output{}, errors.New("empty document")
	}

	conv := &yamlConverter{}
	value, err := conv.convert(root.Content[0], 0)
	if err != nil {
		return Output{}, err
	}
	doc, ok := value.(map[string]any)
	if !ok {
		return Output{}, fmt.Errorf("top-level value is %T, not a mapping", value)
	}

	for _, path := range opts.IgnorePaths {
		if path = strings.TrimSpace(path); path != "" {
			deletePath(doc, strings.Split(path, "."))
		}
	}
	sortServers(doc)

	text, err := canonicalJSON(doc)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: text}, nil
}

func canonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// yamlConverter turns a yaml.Node tree into plain Go values, expanding
// aliases and merge keys. Comments live on nodes and are dropped.
type yamlConverter struct {
	nodes int
}

func (c *yamlConverter) convert(n *yaml.Node, depth int) (any, error) {
	if depth > maxYAMLDepth {
		return nil, fmt.Errorf("document nested deeper than %d levels", maxYAMLDepth)
	}
	c.nodes++
	if c.nodes > maxYAMLNodes {
		return nil, fmt.Errorf("document expands to more than %d nodes", maxYAMLNodes)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return c.convert(n.Content[0], depth+1)
	case yaml.AliasNode:
		return c.convert(n.Alias, depth+1)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := c.convert(item, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		return c.convertMapping(n, depth)
	case yaml.ScalarNode:
		return scalarValue(n), nil
	}
	return nil, fmt.Errorf("unsupported YAML node kind %d", n.Kind)
}

func (c *yamlConverter) convertMapping(n *yaml.Node, depth int) (map[string]any, error) {
	out := make(map[string]any, len(n.Content)/2)
	var merges []*yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valueNode := n.Content[i], n.Content[i+1]
		if keyNode.ShortTag() == "!!merge" {
			merges = append(merges, valueNode)
			continue
		}
		key, err := c.keyString(keyNode, depth)
		if err != nil {
			return nil, err
		}
		v, err := c.convert(valueNode, depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}

	// Explicit keys win over merged ones; earlier merge sources win over
	// later ones.
	for _, m := range merges {
		if m.Kind == yaml.AliasNode {
			m = m.Alias
		}
		sources := []*yaml.Node{m}
		if m.Kind == yaml.SequenceNode {
			sources = m.Content
		}
		for _, src := range sources {
			v, err := c.convert(src, depth+1)
			if err != nil {
				return nil, err
			}
			merged, ok := v.(map[string]any)
			if !ok {
				return nil, errors.New("merge key value is not a mapping")
			}
			for k, mv := range merged {
				if _, exists := out[k]; !exists {
					out[k] = mv
				}
			}
		}
	}
	return out, nil
}

// keyString renders a mapping key as a JSON object key. Non-string
// scalar keys such as response codes keep their literal spelling.
func (c *yamlConverter) keyString(n *yaml.Node, depth int) (string, error) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind == yaml.ScalarNode {
		return n.Value, nil
	}
	v, err := c.convert(n, depth+1)
	if err != nil {
		return "", err
	}
	text, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func scalarValue(n *yaml.Node) any {
	switch n.ShortTag() {
	case "!!null":
		return nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return b
		}
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i
		}
		var u uint64
		if err := n.Decode(&u); err == nil {
			return u
		}
	case "!!float":
		var f float64
		if err := n.Decode(&f); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
	}
	return n.Value
}

// deletePath removes the value at a dotted path. A "*" segment matches
// every key of a mapping.
func deletePath(m map[string]any, segments []string) {
	if len(segments) == 0 {
		return
	}
	head, rest := segments[0], segments[1:]
	keys := []string{head}
	if head == "*" {
		keys = keys[:0]
		for k := range m {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if len(rest) == 0 {
			delete(m, k)
			continue
		}
		if child, ok := m[k].(map[string]any); ok {
			deletePath(child, rest)
		}
	}
}

func sortServers(doc map[string]any) {
	servers, ok := doc["servers"].([]any)
	if !ok {
		return
	}
	sortKey := func(v any) string {
		if m, ok := v.(map[string]any); ok {
			if url, ok := m["url"].(string); ok {
				return url
			}
		}
		return ""
	}
	rendered := func(v any) string {
		text, _ := canonicalJSON(v)
		return text
	}
	sort.SliceStable(servers, func(i, j int) bool {
		ki, kj := sortKey(servers[i]), sortKey(servers[j])
		if ki != kj {
			return ki < kj
		}
		return rendered(servers[i]) < rendered(servers[j])
	})
}

// OpenAPIOperations lists the "METHOD /path" pairs of canonical OpenAPI
// text, sorted. It returns nil when the text is not canonical JSON.
func OpenAPIOperations(canonical string) []string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(canonical), &doc); err != nil {
		return nil
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return nil
	}

	var ops []string
	for path, item := range paths {
		methods, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for method := range methods {
			if httpMethods[strings.ToLower(method)] {
				ops = append(ops, strings.ToUpper(method)+" "+path)
			}
		}
	}
	sort.Strings(ops)
	return ops
}
