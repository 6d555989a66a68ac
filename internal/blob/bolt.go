package blob

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/eldtechnologies/chatboard/internal/models"
)

var attachmentsBucket = []byte("attachments")

// BoltStore keeps attachments in a single bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) a bbolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(attachmentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(_ context.Context, meta models.Attachment, data []byte) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(attachmentsBucket)
		if err := bucket.Put(dataKey(meta.ID), data); err != nil {
			return err
		}
		return bucket.Put(metaKey(meta.ID), raw)
	})
}

func (s *BoltStore) Stat(_ context.Context, id string) (*models.Attachment, error) {
	var meta *models.Attachment
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(attachmentsBucket).Get(metaKey(id))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		meta, err = decodeMeta(raw)
		return err
	})
	return meta, err
}

func (s *BoltStore) Get(_ context.Context, id string) (*models.Attachment, []byte, error) {
	var (
		meta *models.Attachment
		data []byte
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(attachmentsBucket)
		raw := bucket.Get(metaKey(id))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		if meta, err = decodeMeta(raw); err != nil {
			return err
		}
		// values are only valid inside the transaction
		data = append([]byte(nil), bucket.Get(dataKey(id))...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return meta, data, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
