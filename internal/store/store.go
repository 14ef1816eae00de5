// Package store defines the backing-store contract for board documents and the
// error taxonomy shared by every layer that persists them.
//
// A store holds one record per board id. Records are created with Ensure and
// then only ever overwritten as a whole by Save; there is no partial update and
// no merge.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/idilsaglam/board/internal/model"
)

var (
	// ErrStoreUnavailable means the backend could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrWriteRejected means the backend refused the write, usually because
	// no record exists for the id.
	ErrWriteRejected = errors.New("write rejected")
	// ErrNotFound means no record exists for the id.
	ErrNotFound = errors.New("not found")
	// ErrCorruptData means stored content does not parse into a document.
	ErrCorruptData = errors.New("corrupt data")
	// ErrValidation means a client-submitted payload failed validation.
	ErrValidation = errors.New("validation error")
	// ErrVersionConflict means a conditional write saw a different version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUnauthorized means the credential was missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")
)

// Store loads and saves whole documents keyed by board id.
type Store interface {
	// Load returns ok=false when no record exists for id.
	Load(ctx context.Context, id string) (doc model.Document, ok bool, err error)
	// Save overwrites the record for id. It fails with ErrWriteRejected when
	// the record does not exist.
	Save(ctx context.Context, id string, doc model.Document) error
	// Ensure creates an empty record for id unless one exists.
	Ensure(ctx context.Context, id string) error
	Close() error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// CheckID rejects ids that cannot be used as a file name or key suffix.
func CheckID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid board id %q", ErrValidation, id)
	}
	return nil
}

// Decode turns stored bytes into a document, mapping parse failures onto
// ErrCorruptData.
func Decode(raw []byte) (model.Document, error) {
	sections, err := model.DecodeSections(raw)
	if err != nil {
		return model.Document{}, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return model.Document{Sections: sections}, nil
}

// Unavailable wraps a backend error as ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
