package bookmark

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	bucketName = "bookmarks"
)

// BoltDBStore implements Store using BoltDB
type BoltDBStore struct {
	db *bbolt.DB
}

// NewBoltDBStore opens (or creates) a BoltDB bookmark file
func NewBoltDBStore(dbPath string) (*BoltDBStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bookmark directory: %w", err)
	}

	// Short timeout: a held lock means another harvester owns the file
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB bookmark store initialized")

	return &BoltDBStore{db: db}, nil
}

// LoadAll returns all stored bookmarks
func (s *BoltDBStore) LoadAll(ctx context.Context) ([]domain.Bookmark, error) {
	var result []domain.Bookmark

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.ForEach(func(k, v []byte) error {
			id, err := domain.ParseIdentityKey(string(k))
			if err != nil {
				log.Warn().Err(err).Str("key", string(k)).Msg("Skipping malformed bookmark key")
				return nil
			}
			if len(v) < 8 {
				log.Warn().Str("key", string(k)).Msg("Skipping malformed bookmark value")
				return nil
			}
			result = append(result, domain.Bookmark{
				Identity: id,
				Offset:   int(binary.BigEndian.Uint64(v)),
			})
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load bookmarks: %w", err)
	}

	return result, nil
}

// Insert stores the bookmark of a new identity
func (s *BoltDBStore) Insert(ctx context.Context, id domain.LogIdentity, offset int) error {
	err := s.put(id, offset, func(existing []byte) error {
		if existing != nil {
			return ErrExists
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert bookmark %s: %w", id, err)
	}

	log.Debug().
		Str("path", id.Path).
		Time("open_time", id.OpenTime).
		Int("offset", offset).
		Msg("Bookmark inserted")

	return nil
}

// Update moves the bookmark of a known identity
func (s *BoltDBStore) Update(ctx context.Context, id domain.LogIdentity, offset int) error {
	err := s.put(id, offset, func(existing []byte) error {
		if existing == nil {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update bookmark %s: %w", id, err)
	}

	log.Debug().
		Str("path", id.Path).
		Time("open_time", id.OpenTime).
		Int("offset", offset).
		Msg("Bookmark updated")

	return nil
}

// put writes the offset after check accepts the current value (nil if absent)
func (s *BoltDBStore) put(id domain.LogIdentity, offset int, check func(existing []byte) error) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		key := []byte(id.Key())
		if err := check(b.Get(key)); err != nil {
			return err
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(offset))

		return b.Put(key, val)
	})
}

// Close closes the BoltDB database
func (s *BoltDBStore) Close() error {
	log.Info().Msg("Closing BoltDB bookmark store")
	return s.db.Close()
}
