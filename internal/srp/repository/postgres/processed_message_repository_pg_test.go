package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evefleet/srp-gateway/internal/srp/domain"
)

func setupProcessedTest(t *testing.T) (domain.ProcessedMessageRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewPgProcessedMessageRepository(mockPool, logger)
	return repo, mockPool
}

func processedMail() *domain.ProcessedMessage {
	return &domain.ProcessedMessage{
		MailID:    7001,
		SenderID:  90000042,
		Subject:   "srp request",
		Timestamp: time.Date(2026, 8, 20, 19, 0, 0, 0, time.UTC),
		Outcome:   domain.OutcomeCreated,
	}
}

func TestPgProcessedMessageRepository_Create(t *testing.T) {
	repo, mockPool := setupProcessedTest(t)
	defer mockPool.Close()

	t.Run("Recorded", func(t *testing.T) {
		mockPool.ExpectExec(`INSERT INTO processed_messages`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		recorded, err := repo.Create(context.Background(), processedMail())
		require.NoError(t, err)
		assert.True(t, recorded)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	// A mail id claimed by another run comes back as a unique violation; the
	// repository reports it as not recorded rather than failing.
	t.Run("AlreadyRecorded", func(t *testing.T) {
		mockPool.ExpectExec(`INSERT INTO processed_messages`).
			WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

		recorded, err := repo.Create(context.Background(), processedMail())
		require.NoError(t, err)
		assert.False(t, recorded)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgProcessedMessageRepository_FilterProcessed(t *testing.T) {
	repo, mockPool := setupProcessedTest(t)
	defer mockPool.Close()

	t.Run("SubsetReturned", func(t *testing.T) {
		rows := mockPool.NewRows([]string{"mail_id"}).AddRow(int64(7001)).AddRow(int64(7003))
		mockPool.ExpectQuery(`SELECT mail_id FROM processed_messages WHERE mail_id = ANY\(\$1\)`).
			WithArgs([]int64{7001, 7002, 7003}).
			WillReturnRows(rows)

		processed, err := repo.FilterProcessed(context.Background(), []int64{7001, 7002, 7003})
		require.NoError(t, err)
		assert.Equal(t, map[int64]bool{7001: true, 7003: true}, processed)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("EmptyInputSkipsQuery", func(t *testing.T) {
		processed, err := repo.FilterProcessed(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, processed)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
