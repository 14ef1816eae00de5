package board

import (
	"errors"
	"fmt"
	"strings"

	"github.com/idilsaglam/board/internal/model"
)

// ErrIndexOutOfRange is returned when an op addresses a section or item that
// does not exist. Front ends only produce valid indices, so seeing it means a
// caller bug or a rollback racing a concurrent op.
var ErrIndexOutOfRange = errors.New("index out of range")

// Op is one edit of a document. apply mutates doc in place and returns the op
// that undoes it. A nil inverse with a nil error means the op changed nothing.
type Op interface {
	Name() string
	apply(doc *model.Document) (inverse Op, err error)
}

func checkSection(doc *model.Document, s int) error {
	if s < 0 || s >= len(doc.Sections) {
		return fmt.Errorf("%w: section %d of %d", ErrIndexOutOfRange, s, len(doc.Sections))
	}
	return nil
}

func checkItem(doc *model.Document, s, i int) error {
	if err := checkSection(doc, s); err != nil {
		return err
	}
	if n := len(doc.Sections[s].Items); i < 0 || i >= n {
		return fmt.Errorf("%w: item %d of %d in section %d", ErrIndexOutOfRange, i, n, s)
	}
	return nil
}

// AddItem appends a pending item with trimmed text. Blank text is a no-op.
type AddItem struct {
	Section int
	Text    string
}

func (o AddItem) Name() string { return "add item" }

func (o AddItem) apply(doc *model.Document) (Op, error) {
	text := strings.TrimSpace(o.Text)
	if text == "" {
		return nil, nil
	}
	if err := checkSection(doc, o.Section); err != nil {
		return nil, err
	}
	sec := &doc.Sections[o.Section]
	sec.Items = append(sec.Items, model.Item{Text: text})
	return DeleteItem{Section: o.Section, Item: len(sec.Items) - 1}, nil
}

// ToggleItem flips the completed flag. It is its own inverse.
type ToggleItem struct {
	Section, Item int
}

func (o ToggleItem) Name() string { return "toggle item" }

func (o ToggleItem) apply(doc *model.Document) (Op, error) {
	if err := checkItem(doc, o.Section, o.Item); err != nil {
		return nil, err
	}
	it := &doc.Sections[o.Section].Items[o.Item]
	it.Completed = !it.Completed
	return o, nil
}

// SetItemText replaces an item's text in place.
type SetItemText struct {
	Section, Item int
	Text          string
}

func (o SetItemText) Name() string { return "edit item" }

func (o SetItemText) apply(doc *model.Document) (Op, error) {
	if err := checkItem(doc, o.Section, o.Item); err != nil {
		return nil, err
	}
	it := &doc.Sections[o.Section].Items[o.Item]
	prev := it.Text
	it.Text = o.Text
	return SetItemText{Section: o.Section, Item: o.Item, Text: prev}, nil
}

// DeleteItem removes an item; the inverse puts it back at the same position.
type DeleteItem struct {
	Section, Item int
}

func (o DeleteItem) Name() string { return "delete item" }

func (o DeleteItem) apply(doc *model.Document) (Op, error) {
	if err := checkItem(doc, o.Section, o.Item); err != nil {
		return nil, err
	}
	sec := &doc.Sections[o.Section]
	removed := sec.Items[o.Item]
	sec.Items = append(sec.Items[:o.Item], sec.Items[o.Item+1:]...)
	return insertItem{Section: o.Section, Item: o.Item, Value: removed}, nil
}

type insertItem struct {
	Section, Item int
	Value         model.Item
}

func (o insertItem) Name() string { return "insert item" }

func (o insertItem) apply(doc *model.Document) (Op, error) {
	if err := checkSection(doc, o.Section); err != nil {
		return nil, err
	}
	sec := &doc.Sections[o.Section]
	if o.Item < 0 || o.Item > len(sec.Items) {
		return nil, fmt.Errorf("%w: insert at %d of %d", ErrIndexOutOfRange, o.Item, len(sec.Items))
	}
	sec.Items = append(sec.Items, model.Item{})
	copy(sec.Items[o.Item+1:], sec.Items[o.Item:])
	sec.Items[o.Item] = o.Value
	return DeleteItem{Section: o.Section, Item: o.Item}, nil
}

// AddSection appends an empty section with the given title. The inverse
// removes that section.
type AddSection struct {
	Title string
}

func (o AddSection) Name() string { return "add section" }

func (o AddSection) apply(doc *model.Document) (Op, error) {
	doc.Sections = append(doc.Sections, model.Section{Title: o.Title, Items: []model.Item{}})
	return DeleteSection{Index: len(doc.Sections) - 1}, nil
}

// RenameSection replaces a section title. The inverse carries the prior title.
type RenameSection struct {
	Index int
	Title string
}

func (o RenameSection) Name() string { return "rename section" }

func (o RenameSection) apply(doc *model.Document) (Op, error) {
	if err := checkSection(doc, o.Index); err != nil {
		return nil, err
	}
	prev := doc.Sections[o.Index].Title
	doc.Sections[o.Index].Title = o.Title
	return RenameSection{Index: o.Index, Title: prev}, nil
}

// DeleteSection removes a section; the inverse restores it at the same position.
type DeleteSection struct {
	Index int
}

func (o DeleteSection) Name() string { return "delete section" }

func (o DeleteSection) apply(doc *model.Document) (Op, error) {
	if err := checkSection(doc, o.Index); err != nil {
		return nil, err
	}
	removed := doc.Sections[o.Index]
	doc.Sections = append(doc.Sections[:o.Index], doc.Sections[o.Index+1:]...)
	return insertSection{Index: o.Index, Value: removed}, nil
}

type insertSection struct {
	Index int
	Value model.Section
}

func (o insertSection) Name() string { return "insert section" }

func (o insertSection) apply(doc *model.Document) (Op, error) {
	if o.Index < 0 || o.Index > len(doc.Sections) {
		return nil, fmt.Errorf("%w: insert section at %d of %d", ErrIndexOutOfRange, o.Index, len(doc.Sections))
	}
	doc.Sections = append(doc.Sections, model.Section{})
	copy(doc.Sections[o.Index+1:], doc.Sections[o.Index:])
	doc.Sections[o.Index] = o.Value.Clone()
	return DeleteSection{Index: o.Index}, nil
}

// commitEdit persists the document as it stands at the end of an edit
// session. Nothing changes locally; the inverse restores the text the item had
// when the session began.
type commitEdit struct {
	restore Op
}

func (commitEdit) Name() string { return "commit edit" }

func (o commitEdit) apply(*model.Document) (Op, error) {
	if o.restore == nil {
		return keep{}, nil
	}
	return o.restore, nil
}

// keep changes nothing. It stands in as the inverse of a commit with nothing
// to restore.
type keep struct{}

func (keep) Name() string { return "keep" }

func (keep) apply(*model.Document) (Op, error) { return keep{}, nil }
