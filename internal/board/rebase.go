package board

import "github.com/idilsaglam/board/internal/model"

// Pending inverses and the edit session address sections and items by
// position, so every op applied after them moves them the way it moved the
// document. An inverse whose target is removed by a later delete is parked on
// that delete, rewritten against the content the delete holds, until the
// delete settles: a committed delete drops it, a rolled back one puts it back
// in the document together with the content.

// pos addresses a section (item < 0) or an item. As a gap it addresses the
// slot an insertion fills.
type pos struct {
	section, item int
}

// mapThrough maps p from the document before op to the document after it.
// ok is false when op removed what p addresses.
func mapThrough(op Op, p pos, gap bool) (pos, bool) {
	switch op := op.(type) {
	case DeleteItem:
		if p.item < 0 || p.section != op.Section {
			break
		}
		if p.item == op.Item && !gap {
			return p, false
		}
		if p.item > op.Item {
			p.item--
		}
	case insertItem:
		if p.item >= 0 && p.section == op.Section && p.item >= op.Item {
			p.item++
		}
	case DeleteSection:
		if p.section == op.Index {
			if gap && p.item < 0 {
				break
			}
			return p, false
		}
		if p.section > op.Index {
			p.section--
		}
	case insertSection:
		if p.section >= op.Index {
			p.section++
		}
	}
	return p, true
}

// target reports what op addresses. ok is false for ops that address nothing
// that can move.
func target(op Op) (p pos, gap, ok bool) {
	switch op := op.(type) {
	case ToggleItem:
		return pos{op.Section, op.Item}, false, true
	case SetItemText:
		return pos{op.Section, op.Item}, false, true
	case DeleteItem:
		return pos{op.Section, op.Item}, false, true
	case insertItem:
		return pos{op.Section, op.Item}, true, true
	case RenameSection:
		return pos{op.Index, -1}, false, true
	case DeleteSection:
		return pos{op.Index, -1}, false, true
	case insertSection:
		return pos{op.Index, -1}, true, true
	}
	return pos{}, false, false
}

func retarget(op Op, p pos) Op {
	switch op := op.(type) {
	case ToggleItem:
		op.Section, op.Item = p.section, p.item
		return op
	case SetItemText:
		op.Section, op.Item = p.section, p.item
		return op
	case DeleteItem:
		op.Section, op.Item = p.section, p.item
		return op
	case insertItem:
		op.Section, op.Item = p.section, p.item
		return op
	case RenameSection:
		op.Index = p.section
		return op
	case DeleteSection:
		op.Index = p.section
		return op
	case insertSection:
		op.Index = p.section
		return op
	}
	return op
}

// rebase moves op across by, which was applied after it. ok is false when by
// removed op's target.
func rebase(op, by Op) (Op, bool) {
	p, gap, ok := target(op)
	if !ok {
		return op, true
	}
	p, ok = mapThrough(by, p, gap)
	if !ok {
		return nil, false
	}
	return retarget(op, p), true
}

// held returns what the insertion ins puts back, as a one-section document.
func held(ins Op) (model.Document, bool) {
	switch ins := ins.(type) {
	case insertItem:
		return model.Document{Sections: []model.Section{{Items: []model.Item{ins.Value}}}}, true
	case insertSection:
		return model.Document{Sections: []model.Section{ins.Value.Clone()}}, true
	}
	return model.Document{}, false
}

// withHeld returns ins restoring doc instead. Once doc is empty there is
// nothing left to restore.
func withHeld(ins Op, doc model.Document) Op {
	switch ins := ins.(type) {
	case insertItem:
		if len(doc.Sections) == 0 || len(doc.Sections[0].Items) == 0 {
			return keep{}
		}
		ins.Value = doc.Sections[0].Items[0]
		return ins
	case insertSection:
		if len(doc.Sections) == 0 {
			return keep{}
		}
		ins.Value = doc.Sections[0]
		return ins
	}
	return ins
}

// intoHeld rewrites op, whose target the delete with inverse ins has just
// removed, against the content ins holds.
func intoHeld(op, ins Op) Op {
	p, _, _ := target(op)
	if _, ok := ins.(insertItem); ok {
		return retarget(op, pos{0, 0})
	}
	return retarget(op, pos{0, p.item})
}

// outOfHeld is the reverse of intoHeld once ins has put the content back.
func outOfHeld(op, ins Op) Op {
	p, _, _ := target(op)
	switch ins := ins.(type) {
	case insertItem:
		return retarget(op, pos{ins.Section, ins.Item})
	case insertSection:
		return retarget(op, pos{ins.Index, p.item})
	}
	return op
}
