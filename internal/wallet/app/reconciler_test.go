package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	srpdomain "github.com/evefleet/srp-gateway/internal/srp/domain"
	"github.com/evefleet/srp-gateway/internal/wallet/domain"
)

type MockRequestRepository struct {
	mock.Mock
}

func (m *MockRequestRepository) Create(ctx context.Context, req *srpdomain.ReimbursementRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockRequestRepository) GetByKillmailID(ctx context.Context, killmailID int64) (*srpdomain.ReimbursementRequest, error) {
	args := m.Called(ctx, killmailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*srpdomain.ReimbursementRequest), args.Error(1)
}

func (m *MockRequestRepository) ApprovedUnpaid(ctx context.Context) ([]*srpdomain.ReimbursementRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*srpdomain.ReimbursementRequest), args.Error(1)
}

func (m *MockRequestRepository) MarkPaid(ctx context.Context, id uuid.UUID, journalID int64, amount decimal.Decimal, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, id, journalID, amount, paidAt)
	return args.Bool(0), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishJSON(subject string, payload any) error {
	args := m.Called(subject, payload)
	return args.Error(0)
}

func approvedRequest(payout string) *srpdomain.ReimbursementRequest {
	return &srpdomain.ReimbursementRequest{
		ID:          uuid.New(),
		CharacterID: 90000042,
		KillmailID:  123456789,
		FinalPayout: decimal.RequireFromString(payout),
		Status:      srpdomain.StatusApproved,
	}
}

func withdrawal(id int64, amount, reason string, date time.Time) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:            id,
		Division:      1,
		Amount:        decimal.RequireFromString(amount),
		Date:          date,
		RefType:       domain.RefTypeWithdrawal,
		Reason:        reason,
		SecondPartyID: 90000042,
	}
}

func TestReconcileMatchesByRequestID(t *testing.T) {
	requests := new(MockRequestRepository)
	ledger := new(MockLedgerRepository)
	events := new(MockEventPublisher)

	req := approvedRequest("70000000")
	paidAt := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)

	requests.On("ApprovedUnpaid", mock.Anything).Return([]*srpdomain.ReimbursementRequest{req}, nil)
	ledger.On("FindWithdrawals", mock.Anything, req.CharacterID, req.FinalPayout).Return([]domain.LedgerEntry{
		withdrawal(555, "-70000000", "DESC: "+req.ID.String(), paidAt),
	}, nil)
	requests.On("MarkPaid", mock.Anything, req.ID, int64(555), decimal.RequireFromString("70000000"), paidAt).Return(true, nil)
	events.On("PublishJSON", SubjectRequestPaid, mock.MatchedBy(func(e PaidEvent) bool {
		return e.RequestID == req.ID && e.JournalID == 555
	})).Return(nil)

	r := NewReconciler(requests, ledger, events, discardLogger())
	summary, err := r.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 1, Paid: 1}, summary)
	requests.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestReconcileMatchesByKillmailID(t *testing.T) {
	requests := new(MockRequestRepository)
	ledger := new(MockLedgerRepository)

	req := approvedRequest("50000000")
	paidAt := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)

	requests.On("ApprovedUnpaid", mock.Anything).Return([]*srpdomain.ReimbursementRequest{req}, nil)
	ledger.On("FindWithdrawals", mock.Anything, req.CharacterID, req.FinalPayout).Return([]domain.LedgerEntry{
		withdrawal(556, "-50000000", "srp for 123456789", paidAt),
	}, nil)
	requests.On("MarkPaid", mock.Anything, req.ID, int64(556), mock.Anything, paidAt).Return(true, nil)

	r := NewReconciler(requests, ledger, nil, discardLogger())
	summary, err := r.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Paid)
}

func TestReconcileKillmailIDMatchesWholeNumbersOnly(t *testing.T) {
	requests := new(MockRequestRepository)
	ledger := new(MockLedgerRepository)

	req := approvedRequest("50000000")
	paidAt := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)

	requests.On("ApprovedUnpaid", mock.Anything).Return([]*srpdomain.ReimbursementRequest{req}, nil)
	// The longer killmail reference shares a prefix with this request's id
	// and must not be taken as a match for it.
	ledger.On("FindWithdrawals", mock.Anything, req.CharacterID, req.FinalPayout).Return([]domain.LedgerEntry{
		withdrawal(557, "-50000000", "srp for 1234567890", paidAt),
	}, nil)

	r := NewReconciler(requests, ledger, nil, discardLogger())
	summary, err := r.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 1, Paid: 0}, summary)
	requests.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestContainsWholeNumber(t *testing.T) {
	assert.True(t, containsWholeNumber("srp 123456789 payout", "123456789"))
	assert.True(t, containsWholeNumber("123456789", "123456789"))
	assert.True(t, containsWholeNumber("km#123456789.", "123456789"))
	assert.False(t, containsWholeNumber("srp 1234567890", "123456789"))
	assert.False(t, containsWholeNumber("srp 0123456789", "123456789"))
	assert.False(t, containsWholeNumber("", "123456789"))
	// A bounded occurrence after an unbounded one still counts.
	assert.True(t, containsWholeNumber("1234567890 then 123456789", "123456789"))
}

func TestReconcileNewestMatchWins(t *testing.T) {
	requests := new(MockRequestRepository)
	ledger := new(MockLedgerRepository)

	req := approvedRequest("50000000")
	newer := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)
	older := newer.Add(-48 * time.Hour)

	requests.On("ApprovedUnpaid", mock.Anything).Return([]*srpdomain.ReimbursementRequest{req}, nil)
	ledger.On("FindWithdrawals", mock.Anything, req.CharacterID, req.FinalPayout).Return([]domain.LedgerEntry{
		withdrawal(700, "-50000000", req.ID.String(), newer),
		withdrawal(600, "-50000000", req.ID.String(), older),
	}, nil)
	requests.On("MarkPaid", mock.Anything, req.ID, int64(700), mock.Anything, newer).Return(true, nil)

	r := NewReconciler(requests, ledger, nil, discardLogger())
	summary, err := r.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Paid)
}

func TestReconcileNoMemoMatchStaysApproved(t *testing.T) {
	requests := new(MockRequestRepository)
	ledger := new(MockLedgerRepository)

	req := approvedRequest("50000000")
	requests.On("ApprovedUnpaid", mock.Anything).Return([]*srpdomain.ReimbursementRequest{req}, nil)
	// Right amount and party, but the memo references something else.
	ledger.On("FindWithdrawals", mock.Anything, req.CharacterID, req.FinalPayout).Return([]domain.LedgerEntry{
		withdrawal(800, "-50000000", "DESC: loan repayment", time.Now().UTC()),
	}, nil)

	r := NewReconciler(requests, ledger, nil, discardLogger())
	summary, err := r.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 1, Paid: 0}, summary)
	requests.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileGuardedPromotionNotCountedTwice(t *testing.T) {
	requests := new(MockRequestRepository)
	ledger := new(MockLedgerRepository)
	events := new(MockEventPublisher)

	req := approvedRequest("50000000")
	paidAt := time.Now().UTC()

	requests.On("ApprovedUnpaid", mock.Anything).Return([]*srpdomain.ReimbursementRequest{req}, nil)
	ledger.On("FindWithdrawals", mock.Anything, req.CharacterID, req.FinalPayout).Return([]domain.LedgerEntry{
		withdrawal(900, "-50000000", req.ID.String(), paidAt),
	}, nil)
	// A concurrent run already stamped the row.
	requests.On("MarkPaid", mock.Anything, req.ID, int64(900), mock.Anything, paidAt).Return(false, nil)

	r := NewReconciler(requests, ledger, events, discardLogger())
	summary, err := r.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Paid)
	events.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestReconcileOneFailureDoesNotAbortPass(t *testing.T) {
	requests := new(MockRequestRepository)
	ledger := new(MockLedgerRepository)

	broken := approvedRequest("10000000")
	healthy := approvedRequest("50000000")
	paidAt := time.Now().UTC()

	requests.On("ApprovedUnpaid", mock.Anything).Return([]*srpdomain.ReimbursementRequest{broken, healthy}, nil)
	ledger.On("FindWithdrawals", mock.Anything, broken.CharacterID, broken.FinalPayout).Return(nil, errors.New("db down")).Once()
	ledger.On("FindWithdrawals", mock.Anything, healthy.CharacterID, healthy.FinalPayout).Return([]domain.LedgerEntry{
		withdrawal(901, "-50000000", healthy.ID.String(), paidAt),
	}, nil).Once()
	requests.On("MarkPaid", mock.Anything, healthy.ID, int64(901), mock.Anything, paidAt).Return(true, nil)

	r := NewReconciler(requests, ledger, nil, discardLogger())
	summary, err := r.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, ReconcileSummary{Checked: 2, Paid: 1}, summary)
}
