// Package blob stores uploaded image attachments in an embedded key-value
// store. Metadata and bytes are written under separate keys in one batch.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eldtechnologies/chatboard/internal/models"
)

// ErrNotFound is returned when an attachment does not exist.
var ErrNotFound = errors.New("attachment not found")

// Store persists attachments.
type Store interface {
	Put(ctx context.Context, meta models.Attachment, data []byte) error
	Get(ctx context.Context, id string) (*models.Attachment, []byte, error)
	Stat(ctx context.Context, id string) (*models.Attachment, error)
	Close() error
}

// Open returns the Store for the named backend ("pebble" or "bolt").
func Open(backend, path string) (Store, error) {
	switch backend {
	case "pebble", "":
		return OpenPebble(path)
	case "bolt":
		return OpenBolt(path)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", backend)
	}
}

func metaKey(id string) []byte { return []byte("meta:" + id) }
func dataKey(id string) []byte { return []byte("data:" + id) }

func decodeMeta(raw []byte) (*models.Attachment, error) {
	var meta models.Attachment
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode attachment meta: %w", err)
	}
	return &meta, nil
}
