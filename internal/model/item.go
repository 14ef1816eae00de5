package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Item is a single checklist entry inside a section.
type Item struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// UnmarshalJSON accepts both the object form and the legacy bare-string form.
// A bare string "Milk" becomes {Text: "Milk", Completed: false}. The upgrade is
// read-only: encoding always produces the object form.
func (it *Item) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("legacy item: %w", err)
		}
		*it = Item{Text: s}
		return nil
	}
	type plain Item
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*it = Item(p)
	return nil
}
