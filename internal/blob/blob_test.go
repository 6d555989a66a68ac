package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eldtechnologies/chatboard/internal/models"
)

func TestStores(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"pebble": func(t *testing.T) Store {
			s, err := Open("pebble", filepath.Join(t.TempDir(), "blobs"))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
		"bolt": func(t *testing.T) Store {
			s, err := Open("bolt", filepath.Join(t.TempDir(), "blobs.db"))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			data := []byte("\x89PNG fake image bytes")
			meta := models.Attachment{
				ID:          "01HX0000000000000000000000",
				Owner:       "acct-1",
				ContentType: "image/png",
				Size:        int64(len(data)),
				CreatedAt:   time.Now().UTC().Truncate(time.Second),
			}
			if err := s.Put(ctx, meta, data); err != nil {
				t.Fatal(err)
			}

			got, gotData, err := s.Get(ctx, meta.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(gotData, data) {
				t.Fatalf("data mismatch: %q", gotData)
			}
			if got.ContentType != "image/png" || got.Owner != "acct-1" || !got.CreatedAt.Equal(meta.CreatedAt) {
				t.Fatalf("meta mismatch: %+v", got)
			}

			stat, err := s.Stat(ctx, meta.ID)
			if err != nil || stat.Size != meta.Size {
				t.Fatalf("stat failed: %+v %v", stat, err)
			}

			if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := s.Stat(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("s3", t.TempDir()); err == nil {
		t.Fatal("expected error")
	}
}
