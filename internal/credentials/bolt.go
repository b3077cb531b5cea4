package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCredentials = []byte("credentials")
	keyToken          = []byte("token")
	keySavedAt        = []byte("saved_at")
)

// BoltStore keeps the operator token in a BoltDB file
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the credential store at path
func OpenBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCredentials); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketCredentials, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Save stores a token, replacing any previous one
func (s *BoltStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		if err := b.Put(keyToken, []byte(token)); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		return b.Put(keySavedAt, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Token returns the stored token or ErrNoCredential
func (s *BoltStore) Token(ctx context.Context) (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketCredentials).Get(keyToken); v != nil {
			token = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// SavedAt returns when the token was stored, zero if none
func (s *BoltStore) SavedAt(ctx context.Context) (time.Time, error) {
	var savedAt time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get(keySavedAt)
		if v == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339, string(v))
		if err != nil {
			return err
		}
		savedAt = t
		return nil
	})
	return savedAt, err
}

// Invalidate removes the stored token
func (s *BoltStore) Invalidate(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		if err := b.Delete(keyToken); err != nil {
			return fmt.Errorf("failed to delete token: %w", err)
		}
		return b.Delete(keySavedAt)
	})
}

// Close closes the underlying database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
