package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/evefleet/srp-gateway/internal/esi"
	"github.com/evefleet/srp-gateway/internal/wallet/domain"
)

type MockJournalSource struct {
	mock.Mock
}

func (m *MockJournalSource) WalletJournal(ctx context.Context, division, page int) ([]esi.JournalEntry, error) {
	args := m.Called(ctx, division, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]esi.JournalEntry), args.Error(1)
}

func (m *MockJournalSource) ResolveNames(ctx context.Context, ids []int64) ([]esi.NameRef, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]esi.NameRef), args.Error(1)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) MaxEntryID(ctx context.Context, division int) (int64, error) {
	args := m.Called(ctx, division)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) InsertIgnore(ctx context.Context, entries []domain.LedgerEntry) (int, error) {
	args := m.Called(ctx, entries)
	return args.Int(0), args.Error(1)
}

func (m *MockLedgerRepository) FindWithdrawals(ctx context.Context, counterpartyID int64, amount decimal.Decimal) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, counterpartyID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func journalEntry(id int64, amount string) esi.JournalEntry {
	return esi.JournalEntry{
		ID:            id,
		Amount:        decimal.RequireFromString(amount),
		Date:          time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		RefType:       domain.RefTypeWithdrawal,
		Reason:        "DESC: payment",
		FirstPartyID:  98000001,
		SecondPartyID: 90000042,
	}
}

func TestFetcherStopsAtWatermark(t *testing.T) {
	source := new(MockJournalSource)
	ledger := new(MockLedgerRepository)

	ledger.On("MaxEntryID", mock.Anything, 1).Return(int64(100), nil)
	// Page one straddles the watermark: ids 102 and 101 are new, 100 is not.
	source.On("WalletJournal", mock.Anything, 1, 1).Return([]esi.JournalEntry{
		journalEntry(102, "-70000000"),
		journalEntry(101, "-50000000"),
		journalEntry(100, "-10000000"),
	}, nil)
	source.On("ResolveNames", mock.Anything, mock.Anything).Return([]esi.NameRef{
		{ID: 90000042, Name: "Test Pilot", Category: "character"},
	}, nil)
	ledger.On("InsertIgnore", mock.Anything, mock.MatchedBy(func(rows []domain.LedgerEntry) bool {
		return len(rows) == 2 && rows[0].ID == 102 && rows[1].ID == 101 &&
			rows[0].SecondPartyName == "Test Pilot"
	})).Return(2, nil)

	fetcher := NewFetcher(source, ledger, 10, discardLogger())
	inserted, err := fetcher.FetchAndSave(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	// Fetching stops after the watermark page; page two is never requested.
	source.AssertNumberOfCalls(t, "WalletJournal", 1)
}

func TestFetcherRespectsPageLimit(t *testing.T) {
	source := new(MockJournalSource)
	ledger := new(MockLedgerRepository)

	ledger.On("MaxEntryID", mock.Anything, 1).Return(int64(0), nil)
	source.On("WalletJournal", mock.Anything, 1, 1).Return([]esi.JournalEntry{journalEntry(2, "-10")}, nil)
	source.On("WalletJournal", mock.Anything, 1, 2).Return([]esi.JournalEntry{journalEntry(1, "-20")}, nil)
	source.On("ResolveNames", mock.Anything, mock.Anything).Return([]esi.NameRef{}, nil)
	ledger.On("InsertIgnore", mock.Anything, mock.Anything).Return(2, nil)

	fetcher := NewFetcher(source, ledger, 2, discardLogger())
	inserted, err := fetcher.FetchAndSave(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	source.AssertNumberOfCalls(t, "WalletJournal", 2)
}

func TestFetcherEmptyJournalInsertsNothing(t *testing.T) {
	source := new(MockJournalSource)
	ledger := new(MockLedgerRepository)

	ledger.On("MaxEntryID", mock.Anything, 1).Return(int64(0), nil)
	source.On("WalletJournal", mock.Anything, 1, 1).Return([]esi.JournalEntry{}, nil)

	fetcher := NewFetcher(source, ledger, 10, discardLogger())
	inserted, err := fetcher.FetchAndSave(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	ledger.AssertNotCalled(t, "InsertIgnore", mock.Anything, mock.Anything)
}

func TestFetcherNameFailureDoesNotBlockInsert(t *testing.T) {
	source := new(MockJournalSource)
	ledger := new(MockLedgerRepository)

	ledger.On("MaxEntryID", mock.Anything, 1).Return(int64(0), nil)
	source.On("WalletJournal", mock.Anything, 1, 1).Return([]esi.JournalEntry{journalEntry(5, "-10")}, nil)
	source.On("WalletJournal", mock.Anything, 1, 2).Return([]esi.JournalEntry{}, nil)
	source.On("ResolveNames", mock.Anything, mock.Anything).Return(nil, errors.New("names down"))
	ledger.On("InsertIgnore", mock.Anything, mock.MatchedBy(func(rows []domain.LedgerEntry) bool {
		return len(rows) == 1 && rows[0].SecondPartyName == ""
	})).Return(1, nil)

	fetcher := NewFetcher(source, ledger, 10, discardLogger())
	inserted, err := fetcher.FetchAndSave(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}
