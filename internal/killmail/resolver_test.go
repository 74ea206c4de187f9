package killmail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evefleet/srp-gateway/internal/esi"
)

type MockRecordFetcher struct {
	mock.Mock
}

func (m *MockRecordFetcher) Killmail(ctx context.Context, killmailID int64, hash string) (*esi.Killmail, error) {
	args := m.Called(ctx, killmailID, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*esi.Killmail), args.Error(1)
}

type MockHashLookup struct {
	mock.Mock
}

func (m *MockHashLookup) Hash(ctx context.Context, killmailID int64) (string, error) {
	args := m.Called(ctx, killmailID)
	return args.String(0), args.Error(1)
}

func newTestResolver(records RecordFetcher, hashes HashLookup) *Resolver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(records, hashes, logger)
}

func TestResolver_Resolve_EmbeddedHashSkipsLookup(t *testing.T) {
	records := new(MockRecordFetcher)
	hashes := new(MockHashLookup)
	resolver := newTestResolver(records, hashes)

	km := &esi.Killmail{KillmailID: 42}
	records.On("Killmail", mock.Anything, int64(42), testHash).Return(km, nil)

	got, err := resolver.Resolve(context.Background(), "killReport:42:"+testHash)
	require.NoError(t, err)
	assert.Equal(t, km, got.Record)
	assert.Equal(t, testHash, got.Reference.Hash)
	hashes.AssertNotCalled(t, "Hash", mock.Anything, mock.Anything)
}

func TestResolver_Resolve_WebLinkLooksUpHash(t *testing.T) {
	records := new(MockRecordFetcher)
	hashes := new(MockHashLookup)
	resolver := newTestResolver(records, hashes)

	hashes.On("Hash", mock.Anything, int64(42)).Return(testHash, nil)
	records.On("Killmail", mock.Anything, int64(42), testHash).Return(&esi.Killmail{KillmailID: 42}, nil)

	got, err := resolver.Resolve(context.Background(), "https://zkillboard.com/kill/42/")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Record.KillmailID)
	hashes.AssertExpectations(t)
}

func TestResolver_Resolve_NoReference(t *testing.T) {
	resolver := newTestResolver(new(MockRecordFetcher), new(MockHashLookup))

	_, err := resolver.Resolve(context.Background(), "no links in here")
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestResolver_Resolve_HashLookupFailure(t *testing.T) {
	records := new(MockRecordFetcher)
	hashes := new(MockHashLookup)
	resolver := newTestResolver(records, hashes)

	hashes.On("Hash", mock.Anything, int64(42)).Return("", errors.New("upstream down"))

	_, err := resolver.Resolve(context.Background(), "zkillboard.com/kill/42/")
	require.Error(t, err)
	records.AssertNotCalled(t, "Killmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolver_Resolve_FetchFailure(t *testing.T) {
	records := new(MockRecordFetcher)
	hashes := new(MockHashLookup)
	resolver := newTestResolver(records, hashes)

	records.On("Killmail", mock.Anything, int64(42), testHash).Return(nil, errors.New("esi: exhausted attempts"))

	_, err := resolver.Resolve(context.Background(), "killReport:42:"+testHash)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoReference)
}
