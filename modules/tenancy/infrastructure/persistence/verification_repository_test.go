package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/verification"
)

func TestPgVerificationRepository_FindPendingFiltersByMaxAttempts(t *testing.T) {
	db := newScriptedDB(t)
	repo := NewPgVerificationRepository(db)

	now := time.Now()
	db.expect(`WHERE status = 'pending'\s+AND attempts < \$1`, 10).returnRows(
		[]any{uuid.New(), uuid.New(), "a.com", "tok-a", "pending", 3, now, nil, "not found", now, now},
		[]any{uuid.New(), uuid.New(), "b.com", "tok-b", "pending", 7, nil, nil, nil, now, now},
	)

	got, err := repo.FindPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Attempts)
	require.NotNil(t, got[0].ErrorMessage)
	assert.Equal(t, "not found", *got[0].ErrorMessage)
	assert.NotNil(t, got[0].LastAttemptAt)
	assert.Nil(t, got[1].LastAttemptAt)
	assert.Nil(t, got[1].ErrorMessage)
}

func TestPgVerificationRepository_CreateDuplicatePending(t *testing.T) {
	db := newScriptedDB(t)
	repo := NewPgVerificationRepository(db)

	db.expect(`INSERT INTO domain_verifications`).
		returnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), uuid.New(), "acme.com", "tok")
	require.ErrorIs(t, err, domain.ErrVerificationExists)
}

func TestPgVerificationRepository_FindLatestNotFound(t *testing.T) {
	db := newScriptedDB(t)
	repo := NewPgVerificationRepository(db)

	tenantID := uuid.New()
	db.expect(`ORDER BY created_at DESC`, tenantID, "acme.com")

	_, err := repo.FindLatest(context.Background(), tenantID, "Acme.COM")
	require.ErrorIs(t, err, domain.ErrVerificationNotFound)
}

func TestPgVerificationRepository_UpdateGuardsAttemptCount(t *testing.T) {
	db := newScriptedDB(t)
	repo := NewPgVerificationRepository(db)

	id := uuid.New()
	now := time.Now()
	db.expect(`UPDATE domain_verifications[\s\S]+WHERE id = \$6\s+AND attempts = \$7`,
		"verified", 2, now, &now, (*string)(nil), id, 1,
	).returnTag("UPDATE 1")

	err := repo.Update(context.Background(), id, domain.VerificationUpdate{
		Status:           verification.StatusVerified,
		PreviousAttempts: 1,
		Attempts:         2,
		LastAttemptAt:    now,
		VerifiedAt:       &now,
	})
	require.NoError(t, err)
}

func TestPgVerificationRepository_UpdateConcurrentlyChanged(t *testing.T) {
	db := newScriptedDB(t)
	repo := NewPgVerificationRepository(db)

	id := uuid.New()
	db.expect(`UPDATE domain_verifications`).returnTag("UPDATE 0")
	db.expect(`SELECT attempts FROM domain_verifications WHERE id = \$1`, id).returnRow(4)

	err := repo.Update(context.Background(), id, domain.VerificationUpdate{
		Status:           verification.StatusPending,
		PreviousAttempts: 3,
		Attempts:         4,
	})
	require.ErrorIs(t, err, domain.ErrVerificationConflict)
}

func TestPgVerificationRepository_UpdateMissingRow(t *testing.T) {
	db := newScriptedDB(t)
	repo := NewPgVerificationRepository(db)

	db.expect(`UPDATE domain_verifications`).returnTag("UPDATE 0")
	db.expect(`SELECT attempts FROM domain_verifications`)

	err := repo.Update(context.Background(), uuid.New(), domain.VerificationUpdate{Status: verification.StatusPending})
	require.ErrorIs(t, err, domain.ErrVerificationNotFound)
}
