package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/iota-uz/tenancy/modules/tenancy/domain"
	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
)

const pgUniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const tenantColumns = `
			id,
			subdomain,
			custom_domain,
			domain_verified,
			status,
			name,
			tier,
			created_at,
			updated_at`

type PgTenantRepository struct {
	db DB
}

func NewPgTenantRepository(db DB) *PgTenantRepository {
	return &PgTenantRepository{db: db}
}

func (r *PgTenantRepository) FindBySubdomainOrDomain(ctx context.Context, identifier string) (*tenant.Tenant, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+tenantColumns+`
		FROM tenants
		WHERE status = 'active'
		  AND (lower(subdomain) = $1 OR (lower(custom_domain) = $1 AND domain_verified = true))
		ORDER BY (lower(subdomain) = $1) DESC
		LIMIT 1
	`, strings.ToLower(identifier))

	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, unavailable("failed to find tenant by identifier", err)
	}
	return t, nil
}

func (r *PgTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+tenantColumns+`
		FROM tenants
		WHERE id = $1
	`, id)

	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, unavailable("failed to get tenant", err)
	}
	return t, nil
}

func (r *PgTenantRepository) FindActive(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT`+tenantColumns+`
		FROM tenants
		WHERE status = 'active'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, unavailable("failed to query active tenants", err)
	}
	defer rows.Close()

	var out []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan tenant")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("error iterating tenants", err)
	}
	return out, nil
}

func (r *PgTenantRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO tenants (
			id,
			subdomain,
			custom_domain,
			domain_verified,
			status,
			name,
			tier,
			created_at,
			updated_at
		)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, now(), now())
		RETURNING`+tenantColumns,
		t.ID(),
		strings.ToLower(t.Subdomain()),
		strings.ToLower(t.CustomDomain()),
		t.DomainVerified(),
		string(t.Status()),
		t.Name(),
		t.Tier(),
	)
	created, err := scanTenant(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create tenant")
	}
	return created, nil
}

func (r *PgTenantRepository) Update(ctx context.Context, id uuid.UUID, update domain.TenantUpdate) (*tenant.Tenant, error) {
	if update.Empty() {
		return r.FindByID(ctx, id)
	}

	sets := make([]string, 0, 6)
	args := make([]any, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.CustomDomain != nil {
		args = append(args, strings.ToLower(*update.CustomDomain))
		sets = append(sets, fmt.Sprintf("custom_domain = NULLIF($%d, '')", len(args)))
	}
	if update.DomainVerified != nil {
		add("domain_verified", *update.DomainVerified)
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Tier != nil {
		add("tier", *update.Tier)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	q := fmt.Sprintf(`
		UPDATE tenants
		SET %s
		WHERE id = $%d
		RETURNING`+tenantColumns,
		strings.Join(sets, ", "), len(args),
	)
	t, err := scanTenant(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, domain.ErrDomainTaken
		}
		return nil, unavailable("failed to update tenant", err)
	}
	return t, nil
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		id             uuid.UUID
		subdomain      string
		customDomain   *string
		domainVerified bool
		status         string
		name           string
		tier           string
		createdAt      time.Time
		updatedAt      time.Time
	)
	if err := row.Scan(
		&id,
		&subdomain,
		&customDomain,
		&domainVerified,
		&status,
		&name,
		&tier,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	opts := []tenant.Option{
		tenant.WithID(id),
		tenant.WithDomainVerified(domainVerified),
		tenant.WithStatus(tenant.Status(status)),
		tenant.WithTier(tier),
		tenant.WithCreatedAt(createdAt),
		tenant.WithUpdatedAt(updatedAt),
	}
	if customDomain != nil {
		opts = append(opts, tenant.WithCustomDomain(*customDomain))
	}
	return tenant.New(subdomain, name, opts...), nil
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrStoreUnavailable, err)
}
