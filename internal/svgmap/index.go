package svgmap

import (
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
)

// Marker radius window and label length cutoff used when indexing.
const (
	markerMinRadius = 2
	markerMaxRadius = 15
	labelMaxRunes   = 10
)

// NameSet reports whether a label is a known station name.
type NameSet interface {
	HasName(name string) bool
}

// EntryKind tells markers from labels in the index.
type EntryKind int

const (
	KindMarker EntryKind = iota
	KindLabel
)

type indexEntry struct {
	kind EntryKind
	el   *etree.Element
}

// ElementIndex maps display keys to map elements, keeping first-insertion
// order of keys so lookups that scan it are deterministic.
type ElementIndex struct {
	keys    []string
	entries map[string]indexEntry
}

func newElementIndex() *ElementIndex {
	return &ElementIndex{entries: make(map[string]indexEntry)}
}

// Len returns the number of distinct keys.
func (x *ElementIndex) Len() int {
	return len(x.keys)
}

// Labels returns the label keys in document order.
func (x *ElementIndex) Labels() []string {
	var out []string
	for _, k := range x.keys {
		if x.entries[k].kind == KindLabel {
			out = append(out, k)
		}
	}
	return out
}

// Markers returns the number of marker keys.
func (x *ElementIndex) Markers() int {
	n := 0
	for _, e := range x.entries {
		if e.kind == KindMarker {
			n++
		}
	}
	return n
}

// put stores el under key; an existing entry is overwritten.
func (x *ElementIndex) put(key string, kind EntryKind, el *etree.Element) {
	if _, ok := x.entries[key]; !ok {
		x.keys = append(x.keys, key)
	}
	x.entries[key] = indexEntry{kind: kind, el: el}
}

// label returns the label element stored under key.
func (x *ElementIndex) label(key string) (*etree.Element, bool) {
	e, ok := x.entries[key]
	if !ok || e.kind != KindLabel {
		return nil, false
	}
	return e.el, true
}

// buildIndex scans the document for station markers and station labels.
// Marker keys collide on missing ids (last write wins); a label name seen
// twice keeps its first occurrence.
func buildIndex(root *etree.Element, names NameSet) *ElementIndex {
	idx := newElementIndex()
	walk(root, func(el *etree.Element) {
		switch el.Tag {
		case "circle":
			r := attrFloat(el, "r")
			if r > markerMinRadius && r < markerMaxRadius {
				id := el.SelectAttrValue("id", "")
				if id == "" {
					id = "unknown"
				}
				idx.put("circle_"+id, KindMarker, el)
			}
		case "text":
			content := strings.TrimSpace(textContent(el))
			n := utf8.RuneCountInString(content)
			if n == 0 || n >= labelMaxRunes {
				return
			}
			if names == nil || !names.HasName(content) {
				return
			}
			if _, taken := idx.entries[content]; taken {
				return
			}
			idx.put(content, KindLabel, el)
		}
	})
	return idx
}

// walk visits el and its descendant elements in document order.
func walk(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, child := range el.ChildElements() {
		walk(child, fn)
	}
}

// textContent concatenates all character data beneath el.
func textContent(el *etree.Element) string {
	var sb strings.Builder
	collectText(el, &sb)
	return sb.String()
}

func collectText(el *etree.Element, sb *strings.Builder) {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			collectText(t, sb)
		}
	}
}
