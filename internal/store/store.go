package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Document names shared by every backend.
const (
	UsersDoc = "toggl_users"
	UsageDoc = "usage_log"
)

var (
	// ErrLocked means the document lock could not be acquired before the
	// context ended.
	ErrLocked = errors.New("store: lock not acquired")
)

// Document is one named mapping of user id to a JSON record.
type Document map[string]json.RawMessage

// Store persists named documents. Each Load, Save and Update is atomic with
// respect to every other call on the same name. A Load followed by a
// separate Save is not; use Update to change one key without dropping
// concurrent writes to other keys.
//
// Load never returns a nil Document; a missing or undecodable document
// loads as an empty one.
type Store interface {
	Load(ctx context.Context, name string) (Document, error)
	Save(ctx context.Context, name string, doc Document) error
	// Update loads the document, passes it to fn and saves the result while
	// holding the document lock. Nothing is written when fn returns an error.
	Update(ctx context.Context, name string, fn func(Document) error) error
}
