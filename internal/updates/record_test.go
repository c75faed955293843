package updates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RetryIn(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := &Record{DID: "did:plc:abc", Error: "boom", ExpiresAt: now.Add(2 * time.Hour)}

	assert.True(t, rec.Failed())
	assert.False(t, rec.Expired(now))
	assert.Equal(t, 2*time.Hour, rec.RetryIn(now))
	assert.True(t, rec.Expired(now.Add(2*time.Hour)))
	assert.Equal(t, time.Duration(0), rec.RetryIn(now.Add(3*time.Hour)))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	_, err := s.Get(ctx, "did:plc:abc")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	rec := &Record{DID: "did:plc:abc", Payload: &Payload{Version: "1.0.0"}, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.Put(ctx, rec))
	rec.Payload = nil

	got, err := s.Get(ctx, "did:plc:abc")
	require.NoError(t, err)
	require.NotNil(t, got.Payload, "the store keeps its own copy")
	assert.Equal(t, "1.0.0", got.Payload.Version)

	now = now.Add(time.Hour)
	_, err = s.Get(ctx, "did:plc:abc")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Equal(t, 0, s.Len(), "expired records are dropped on read")

	require.NoError(t, s.Put(ctx, &Record{DID: "did:plc:xyz", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.Delete(ctx, "did:plc:xyz"))
	_, err = s.Get(ctx, "did:plc:xyz")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
