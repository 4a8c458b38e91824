// Package tenant carries (tenant_id, business_unit_id) explicitly through
// every call into and out of the orchestration core. Tenant identity is
// never read from context.Context or other ambient/thread-local state — it
// is passed as an explicit value. Guard checks a loaded row's tenant against
// it; which storage/postgres queries filter on tenant_id is listed in that
// package's doc comment.
package tenant

import "fmt"

// Context identifies the tenant and business unit a call is scoped to. It is
// deliberately not named "Ctx" or embedded in context.Context: the name
// collision with the standard library is intentional friction, a reminder
// that this value must be threaded explicitly.
type Context struct {
	TenantID       string
	BusinessUnitID string
}

// New constructs a tenant Context, rejecting an empty tenant ID.
func New(tenantID, businessUnitID string) (Context, error) {
	if tenantID == "" {
		return Context{}, fmt.Errorf("tenant: tenant_id is required")
	}
	return Context{TenantID: tenantID, BusinessUnitID: businessUnitID}, nil
}

// String renders the pair for logging and cache-key construction.
func (c Context) String() string {
	return fmt.Sprintf("%s/%s", c.TenantID, c.BusinessUnitID)
}

// Matches reports whether c and other refer to the same tenant. Business
// unit is intentionally excluded: a tenant-level rule (nil business unit)
// must still match a call scoped to one of that tenant's business units.
func (c Context) Matches(other Context) bool {
	return c.TenantID == other.TenantID
}

// ErrCrossTenant is returned, and should be treated as fatal, whenever a row
// is about to be read or written under a tenant different from the caller's
// Context.
type ErrCrossTenant struct {
	Expected string
	Actual   string
}

func (e *ErrCrossTenant) Error() string {
	return fmt.Sprintf("tenant: cross-tenant access denied: expected %q, row belongs to %q", e.Expected, e.Actual)
}

// Guard checks that a row carries the caller's tenant_id. A mismatch is
// returned as *ErrCrossTenant, a fatal-grade error the caller must not
// swallow. Guard does not wrap database calls; a repository uses it only
// where it calls Check itself.
type Guard struct {
	Caller Context
}

// NewGuard binds a Guard to the calling Context.
func NewGuard(caller Context) Guard {
	return Guard{Caller: caller}
}

// Check verifies rowTenantID matches the guard's caller tenant. In
// storage/postgres, SagaRepository.GetForTenant calls it after loading a
// row; no other repository read or write path calls it.
func (g Guard) Check(rowTenantID string) error {
	if rowTenantID != g.Caller.TenantID {
		return &ErrCrossTenant{Expected: g.Caller.TenantID, Actual: rowTenantID}
	}
	return nil
}

// Scope returns a "tenant_id = ?" SQL fragment and its argument for a
// caller to add to a WHERE clause. Nothing appends it automatically; the
// storage/postgres queries write their tenant_id predicates inline.
func (g Guard) Scope() (clause string, args []interface{}) {
	return "tenant_id = ?", []interface{}{g.Caller.TenantID}
}
