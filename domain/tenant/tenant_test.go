package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx, err := New("tenant-1", "bu-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", ctx.TenantID)
	assert.Equal(t, "bu-1", ctx.BusinessUnitID)

	_, err = New("", "bu-1")
	assert.Error(t, err)
}

func TestContext_String(t *testing.T) {
	ctx := Context{TenantID: "tenant-1", BusinessUnitID: "bu-1"}
	assert.Equal(t, "tenant-1/bu-1", ctx.String())
}

func TestContext_Matches(t *testing.T) {
	a := Context{TenantID: "tenant-1", BusinessUnitID: "bu-1"}
	b := Context{TenantID: "tenant-1", BusinessUnitID: "bu-2"}
	c := Context{TenantID: "tenant-2", BusinessUnitID: "bu-1"}

	assert.True(t, a.Matches(b))
	assert.False(t, a.Matches(c))
}

func TestGuard_Check(t *testing.T) {
	guard := NewGuard(Context{TenantID: "tenant-1", BusinessUnitID: "bu-1"})

	assert.NoError(t, guard.Check("tenant-1"))

	err := guard.Check("tenant-2")
	require.Error(t, err)
	var crossTenant *ErrCrossTenant
	assert.ErrorAs(t, err, &crossTenant)
	assert.Equal(t, "tenant-1", crossTenant.Expected)
	assert.Equal(t, "tenant-2", crossTenant.Actual)
}

func TestGuard_Scope(t *testing.T) {
	guard := NewGuard(Context{TenantID: "tenant-1"})
	clause, args := guard.Scope()
	assert.Equal(t, "tenant_id = ?", clause)
	assert.Equal(t, []interface{}{"tenant-1"}, args)
}
