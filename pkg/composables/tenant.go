package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
	"github.com/iota-uz/tenancy/pkg/constants"
)

var ErrNoTenant = errors.New("tenant not found in context")

// WithTenant returns a new context with the resolved tenant.
func WithTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, constants.TenantKey, t)
}

// UseTenant returns the tenant resolved for the current request.
func UseTenant(ctx context.Context) (*tenant.Tenant, error) {
	t, ok := ctx.Value(constants.TenantKey).(*tenant.Tenant)
	if !ok || t == nil {
		return nil, ErrNoTenant
	}
	return t, nil
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	t, err := UseTenant(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return t.ID(), nil
}
