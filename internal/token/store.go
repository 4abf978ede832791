package token

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTokens = []byte("tokens")    // secret -> AccessToken JSON
	bucketByID   = []byte("token_ids") // id -> secret
)

// Store persists access tokens in a bbolt database. Lookups key on the
// literal secret string; a secondary bucket maps management IDs to secrets.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the token database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("token: open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errBucket := tx.CreateBucketIfNotExists(bucketTokens); errBucket != nil {
			return errBucket
		}
		_, errBucket := tx.CreateBucketIfNotExists(bucketByID)
		return errBucket
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token: init store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new token.
func (s *Store) Create(t *AccessToken) error {
	enc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err = tx.Bucket(bucketTokens).Put([]byte(t.Token), enc); err != nil {
			return err
		}
		return tx.Bucket(bucketByID).Put([]byte(t.ID), []byte(t.Token))
	})
}

// Consume validates secret against protectedPath at the given instant and,
// when every clause passes, records the use. Validation and the counter
// update happen inside one write transaction; bbolt serializes writers, so
// two racing requests with the same single-use token cannot both succeed.
//
// Any failing clause yields ErrInvalidToken. An empty secret yields
// ErrNoToken.
func (s *Store) Consume(secret, protectedPath string, now time.Time) (*AccessToken, error) {
	if secret == "" {
		return nil, ErrNoToken
	}
	var consumed *AccessToken
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTokens)
		raw := bucket.Get([]byte(secret))
		if raw == nil {
			return ErrInvalidToken
		}
		var t AccessToken
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("token: corrupt record: %w", err)
		}
		if t.Path != protectedPath || !t.usableAt(now) {
			return ErrInvalidToken
		}
		t.TimesAccessed++
		t.LastAccessed = &now
		enc, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		if err = bucket.Put([]byte(secret), enc); err != nil {
			return err
		}
		consumed = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return consumed, nil
}

// Get returns the token with the given management ID.
func (s *Store) Get(id string) (*AccessToken, error) {
	var t *AccessToken
	err := s.db.View(func(tx *bolt.Tx) error {
		secret := tx.Bucket(bucketByID).Get([]byte(id))
		if secret == nil {
			return ErrNotFound
		}
		raw := tx.Bucket(bucketTokens).Get(secret)
		if raw == nil {
			return ErrNotFound
		}
		var rec AccessToken
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("token: corrupt record: %w", err)
		}
		t = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns every stored token, in unspecified order.
func (s *Store) List() ([]*AccessToken, error) {
	var tokens []*AccessToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).ForEach(func(_, v []byte) error {
			var t AccessToken
			if err := json.Unmarshal(v, &t); err != nil {
				// Skip malformed entries instead of failing the whole list.
				return nil
			}
			tokens = append(tokens, &t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// Revoke clears IsValid on the token with the given ID.
func (s *Store) Revoke(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		secret := tx.Bucket(bucketByID).Get([]byte(id))
		if secret == nil {
			return ErrNotFound
		}
		bucket := tx.Bucket(bucketTokens)
		raw := bucket.Get(secret)
		if raw == nil {
			return ErrNotFound
		}
		var t AccessToken
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("token: corrupt record: %w", err)
		}
		t.IsValid = false
		enc, err := json.Marshal(&t)
		if err != nil {
			return err
		}
		return bucket.Put(secret, enc)
	})
}

// DeleteExpired removes every token that is expired or exhausted at the
// given instant and returns how many were deleted. Intended for the
// periodic cleanup command, not request-path code.
func (s *Store) DeleteExpired(now time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTokens)
		byID := tx.Bucket(bucketByID)

		var doomed []*AccessToken
		if err := bucket.ForEach(func(_, v []byte) error {
			var t AccessToken
			if err := json.Unmarshal(v, &t); err != nil {
				return nil
			}
			if t.Expired(now) || t.Exhausted() {
				doomed = append(doomed, &t)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, t := range doomed {
			if err := bucket.Delete([]byte(t.Token)); err != nil {
				return err
			}
			if err := byID.Delete([]byte(t.ID)); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
