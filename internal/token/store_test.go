package token

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func uintPtr(v uint) *uint { return &v }

func TestNewTokenSecret(t *testing.T) {
	a := New("a", "private/", nil, nil)
	b := New("b", "private/", nil, nil)

	assert.NotEqual(t, a.Token, b.Token)
	assert.NotEqual(t, a.ID, b.ID)
	// 32 random bytes grow to 43 characters of unpadded base64url.
	assert.Len(t, a.Token, 43)
	assert.True(t, a.IsValid)
}

func TestConsumeValidToken(t *testing.T) {
	store := openTestStore(t)
	tok := New("test", "private/", nil, nil)
	require.NoError(t, store.Create(tok))

	now := time.Now()
	rec, err := store.Consume(tok.Token, "private/", now)
	require.NoError(t, err)
	assert.Equal(t, uint(1), rec.TimesAccessed)
	require.NotNil(t, rec.LastAccessed)
	assert.True(t, rec.LastAccessed.Equal(now))

	// The increment is persisted, not just returned.
	stored, err := store.Get(tok.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.TimesAccessed)
}

func TestConsumeEmptySecret(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Consume("", "private/", time.Now())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestConsumeUnknownSecret(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Consume("nope", "private/", time.Now())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeWrongPath(t *testing.T) {
	store := openTestStore(t)
	tok := New("test", "private/", nil, nil)
	require.NoError(t, store.Create(tok))

	_, err := store.Consume(tok.Token, "other/", time.Now())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeRevokedToken(t *testing.T) {
	store := openTestStore(t)
	tok := New("test", "private/", nil, nil)
	require.NoError(t, store.Create(tok))
	require.NoError(t, store.Revoke(tok.ID))

	_, err := store.Consume(tok.Token, "private/", time.Now())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeExpiredToken(t *testing.T) {
	store := openTestStore(t)
	past := time.Now().Add(-time.Hour)
	// Expired wins even with uses remaining.
	tok := New("test", "private/", &past, uintPtr(100))
	require.NoError(t, store.Create(tok))

	_, err := store.Consume(tok.Token, "private/", time.Now())
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeExpiryBoundary(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	tok := New("test", "private/", &now, nil)
	require.NoError(t, store.Create(tok))

	// expires_at must be strictly in the future
	_, err := store.Consume(tok.Token, "private/", now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = store.Consume(tok.Token, "private/", now.Add(-time.Second))
	assert.NoError(t, err)
}

func TestConsumeExhaustion(t *testing.T) {
	store := openTestStore(t)
	tok := New("test", "private/", nil, uintPtr(2))
	require.NoError(t, store.Create(tok))

	now := time.Now()
	_, err := store.Consume(tok.Token, "private/", now)
	require.NoError(t, err)
	_, err = store.Consume(tok.Token, "private/", now)
	require.NoError(t, err)

	// Use three of two: denied, and stays denied.
	_, err = store.Consume(tok.Token, "private/", now)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = store.Consume(tok.Token, "private/", now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeSingleUseRace(t *testing.T) {
	store := openTestStore(t)
	tok := New("test", "private/", nil, uintPtr(1))
	require.NoError(t, store.Create(tok))

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(tok.Token, "private/", time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidToken)
		}
	}
	assert.Equal(t, 1, succeeded, "a single-use token must be consumable exactly once")
}

func TestRevokeUnknownToken(t *testing.T) {
	store := openTestStore(t)
	assert.ErrorIs(t, store.Revoke("missing"), ErrNotFound)
}

func TestList(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Create(New("a", "x/", nil, nil)))
	require.NoError(t, store.Create(New("b", "y/", nil, nil)))

	tokens, err := store.List()
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestDeleteExpired(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := New("expired", "x/", &past, nil)
	require.NoError(t, store.Create(expired))

	exhausted := New("exhausted", "x/", nil, uintPtr(1))
	require.NoError(t, store.Create(exhausted))
	_, err := store.Consume(exhausted.Token, "x/", now)
	require.NoError(t, err)

	alive := New("alive", "x/", &future, uintPtr(5))
	require.NoError(t, store.Create(alive))

	deleted, err := store.DeleteExpired(now)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	tokens, err := store.List()
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "alive", tokens[0].Description)

	// Sweep also drops the ID index entry.
	_, err = store.Get(expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
