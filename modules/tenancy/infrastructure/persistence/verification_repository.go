package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/verification"
)

const verificationColumns = `
			id,
			tenant_id,
			domain,
			verification_token,
			status,
			attempts,
			last_attempt_at,
			verified_at,
			error_message,
			created_at,
			updated_at`

type PgVerificationRepository struct {
	db DB
}

func NewPgVerificationRepository(db DB) *PgVerificationRepository {
	return &PgVerificationRepository{db: db}
}

func (r *PgVerificationRepository) FindPending(ctx context.Context, maxAttempts int) ([]*verification.Attempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT`+verificationColumns+`
		FROM domain_verifications
		WHERE status = 'pending'
		  AND attempts < $1
		ORDER BY created_at ASC
	`, maxAttempts)
	if err != nil {
		return nil, unavailable("failed to query pending verifications", err)
	}
	defer rows.Close()

	var out []*verification.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan verification attempt")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("error iterating verification attempts", err)
	}
	return out, nil
}

func (r *PgVerificationRepository) FindLatest(ctx context.Context, tenantID uuid.UUID, domainName string) (*verification.Attempt, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+verificationColumns+`
		FROM domain_verifications
		WHERE tenant_id = $1
		  AND lower(domain) = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, strings.ToLower(domainName))

	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVerificationNotFound
		}
		return nil, unavailable("failed to find verification attempt", err)
	}
	return a, nil
}

func (r *PgVerificationRepository) Create(ctx context.Context, tenantID uuid.UUID, domainName, token string) (*verification.Attempt, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO domain_verifications (
			id,
			tenant_id,
			domain,
			verification_token,
			status,
			attempts,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, 'pending', 0, now(), now())
		RETURNING`+verificationColumns,
		uuid.New(), tenantID, strings.ToLower(domainName), token,
	)
	a, err := scanAttempt(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, domain.ErrVerificationExists
		}
		return nil, errors.Wrap(err, "failed to create verification attempt")
	}
	return a, nil
}

func (r *PgVerificationRepository) Update(ctx context.Context, id uuid.UUID, update domain.VerificationUpdate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE domain_verifications
		SET status = $1,
			attempts = $2,
			last_attempt_at = $3,
			verified_at = $4,
			error_message = $5,
			updated_at = now()
		WHERE id = $6
		  AND attempts = $7
	`,
		string(update.Status),
		update.Attempts,
		update.LastAttemptAt,
		update.VerifiedAt,
		update.ErrorMessage,
		id,
		update.PreviousAttempts,
	)
	if err != nil {
		return unavailable("failed to update verification attempt", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var attempts int
	err = r.db.QueryRow(ctx, `SELECT attempts FROM domain_verifications WHERE id = $1`, id).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrVerificationNotFound
	}
	if err != nil {
		return unavailable("failed to read verification attempt", err)
	}
	return errors.Wrapf(domain.ErrVerificationConflict, "stored attempts %d, expected %d", attempts, update.PreviousAttempts)
}

func scanAttempt(row pgx.Row) (*verification.Attempt, error) {
	var (
		a      verification.Attempt
		status string
	)
	if err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.Domain,
		&a.VerificationToken,
		&status,
		&a.Attempts,
		&a.LastAttemptAt,
		&a.VerifiedAt,
		&a.ErrorMessage,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = verification.Status(status)
	return &a, nil
}
