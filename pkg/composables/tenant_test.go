package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenancy/modules/tenancy/domain/entities/tenant"
)

func TestUseTenant(t *testing.T) {
	_, err := UseTenant(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)

	id, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)
	assert.Equal(t, uuid.Nil, id)

	acme := tenant.New("acme", "Acme")
	ctx := WithTenant(context.Background(), acme)
	got, err := UseTenant(ctx)
	require.NoError(t, err)
	assert.Same(t, acme, got)

	id, err = UseTenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, acme.ID(), id)
}

func TestUseLogger_FallsBackToSilentLogger(t *testing.T) {
	logger := UseLogger(context.Background())
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Error("discarded") })
}
