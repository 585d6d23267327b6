// Package vault provides the document model for a Markdown vault:
// frontmatter parsing and serialization, tree scanning, and atomic writes.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter keys managed by this tool. Everything else in a document's
// frontmatter is foreign and must survive a processing pass unchanged.
const (
	KeyTitle      = "title"
	KeyDate       = "Date"
	KeyDateSource = "dateSource"
	KeySummary    = "summary"
	KeyTags       = "tags"
	KeyWordCount  = "wordCount"
	KeyMarker     = "autoAiTag"
)

// canonicalKeys is the emission order for managed keys; foreign keys
// follow lexicographically.
var canonicalKeys = []string{
	KeyTitle,
	KeyDate,
	KeyDateSource,
	KeySummary,
	KeyTags,
	KeyWordCount,
	KeyMarker,
}

// Document is one unit of work: a Markdown file split into its
// frontmatter block and body. Raw holds the original bytes and is never
// mutated; all computation happens on copies until the atomic commit.
type Document struct {
	Path           string
	Raw            []byte
	Frontmatter    map[string]any
	Body           string
	HasFrontmatter bool
}

// Parse splits raw content into frontmatter and body.
// Malformed YAML inside the fences yields an error rather than a silent
// empty frontmatter: merging against a block we could not read would
// destroy it on write.
func Parse(path string, raw []byte) (*Document, error) {
	doc := &Document{
		Path:        path,
		Raw:         raw,
		Frontmatter: make(map[string]any),
		Body:        string(raw),
	}

	// a bare "---" with nothing after it cannot open a frontmatter block
	content := string(raw)
	if !strings.HasPrefix(content, "---\n") {
		return doc, nil
	}

	endIdx := strings.Index(content[4:], "\n---")
	if endIdx < 0 {
		return doc, nil
	}

	fmYAML := content[4 : 4+endIdx]
	rest := content[4+endIdx+4:]
	// the closing fence may be followed by a newline
	rest = strings.TrimPrefix(rest, "\n")

	fm := make(map[string]any)
	if err := yaml.Unmarshal([]byte(fmYAML), &fm); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	doc.Frontmatter = fm
	doc.Body = rest
	doc.HasFrontmatter = true
	return doc, nil
}

// Read loads and parses a document from disk.
func Read(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return Parse(path, raw)
}

// MarkerSet reports whether the idempotency marker is set true.
func (d *Document) MarkerSet() bool {
	v, ok := d.Frontmatter[KeyMarker].(bool)
	return ok && v
}

// Title returns the frontmatter title, falling back to the filename stem.
func (d *Document) Title() string {
	if t, ok := d.Frontmatter[KeyTitle].(string); ok && t != "" {
		return t
	}
	base := filepath.Base(d.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Serialize renders frontmatter and body back into file content.
// Managed keys are emitted first in canonical order, foreign keys after
// in lexicographic order, so repeated runs produce identical bytes.
func Serialize(fm map[string]any, body string) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	appendKV := func(key string) error {
		val, ok := fm[key]
		if !ok {
			return nil
		}
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(key); err != nil {
			return err
		}
		valNode := &yaml.Node{}
		if err := valNode.Encode(val); err != nil {
			return err
		}
		root.Content = append(root.Content, keyNode, valNode)
		return nil
	}

	emitted := make(map[string]bool, len(canonicalKeys))
	for _, key := range canonicalKeys {
		if err := appendKV(key); err != nil {
			return nil, fmt.Errorf("serialize frontmatter key %s: %w", key, err)
		}
		emitted[key] = true
	}

	foreign := make([]string, 0, len(fm))
	for key := range fm {
		if !emitted[key] {
			foreign = append(foreign, key)
		}
	}
	sort.Strings(foreign)
	for _, key := range foreign {
		if err := appendKV(key); err != nil {
			return nil, fmt.Errorf("serialize frontmatter key %s: %w", key, err)
		}
	}

	yamlText, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("serialize frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(yamlText)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimLeft(body, "\n"))
	return []byte(b.String()), nil
}
