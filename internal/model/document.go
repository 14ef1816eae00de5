// Package model holds the board document: an ordered list of sections, each an
// ordered list of items. The whole document is the unit of persistence.
package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned when stored content cannot be parsed into sections.
var ErrMalformed = errors.New("malformed document")

// Section is a titled list of items.
type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// MarshalJSON never emits "items": null.
func (s Section) MarshalJSON() ([]byte, error) {
	type plain Section
	p := plain(s)
	if p.Items == nil {
		p.Items = []Item{}
	}
	return json.Marshal(p)
}

// Counts returns the number of completed and pending items.
func (s Section) Counts() (done, pending int) {
	for _, it := range s.Items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}

// Document is the full board state.
type Document struct {
	Sections []Section `json:"sections"`
}

// Empty returns a document with zero sections.
func Empty() Document { return Document{Sections: []Section{}} }

// MarshalJSON never emits "sections": null.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	p := plain(d)
	if p.Sections == nil {
		p.Sections = []Section{}
	}
	return json.Marshal(p)
}

// Clone returns a deep copy that shares no slices with d.
func (d Document) Clone() Document {
	out := Document{Sections: make([]Section, len(d.Sections))}
	for i, s := range d.Sections {
		out.Sections[i] = s.Clone()
	}
	return out
}

// Clone returns a deep copy of the section.
func (s Section) Clone() Section {
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	return Section{Title: s.Title, Items: items}
}

// ETag is a content hash of the canonical encoding of the sections.
func (d Document) ETag() string {
	b, err := EncodeSections(d.Sections)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DecodeSections parses the stored form of a document: a JSON array of sections.
// Empty content and JSON null decode to zero sections.
func DecodeSections(raw []byte) ([]Section, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Section{}, nil
	}
	var sections []Section
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range sections {
		if sections[i].Items == nil {
			sections[i].Items = []Item{}
		}
	}
	return sections, nil
}

// EncodeSections produces the stored form of a document.
func EncodeSections(sections []Section) ([]byte, error) {
	if sections == nil {
		sections = []Section{}
	}
	b, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}
	return b, nil
}
