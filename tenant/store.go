package tenant

import "context"

type Store interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
	UpdateTenant(ctx context.Context, t *Tenant) error
	ListTenants(ctx context.Context, opts ListOpts) ([]*Tenant, error)
}

type ListOpts struct {
	EditionID string
	Limit     int
	Offset    int
}
