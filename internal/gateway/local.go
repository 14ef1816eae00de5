package gateway

import (
	"context"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

// Local binds a store to one board id.
type Local struct {
	Store store.Store
	Board string
}

func NewLocal(st store.Store, board string) *Local {
	return &Local{Store: st, Board: board}
}

// Load reads the board; a missing record reads as empty.
func (l *Local) Load(ctx context.Context) (model.Document, error) {
	doc, ok, err := l.Store.Load(ctx, l.Board)
	if err != nil {
		return model.Document{}, err
	}
	if !ok {
		return model.Empty(), nil
	}
	return doc, nil
}

func (l *Local) Save(ctx context.Context, doc model.Document) error {
	return l.Store.Save(ctx, l.Board, doc)
}
