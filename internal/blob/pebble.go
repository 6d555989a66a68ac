package blob

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"

	"github.com/eldtechnologies/chatboard/internal/models"
)

// PebbleStore keeps attachments in a PebbleDB directory.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a Pebble database at dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Put(_ context.Context, meta models.Attachment, data []byte) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(dataKey(meta.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(metaKey(meta.ID), raw, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *PebbleStore) Stat(_ context.Context, id string) (*models.Attachment, error) {
	raw, err := s.get(metaKey(id))
	if err != nil {
		return nil, err
	}
	return decodeMeta(raw)
}

func (s *PebbleStore) Get(ctx context.Context, id string) (*models.Attachment, []byte, error) {
	meta, err := s.Stat(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.get(dataKey(id))
	if err != nil {
		return nil, nil, err
	}
	return meta, data, nil
}

// get copies the value out; Pebble's slice is only valid until closer.Close.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
