package database

import (
	"context"
	"fmt"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// maxTraversalDepth bounds the related-bookable graph walk.
const maxTraversalDepth = 100

// SetCatalog installs the declarative tenant and bookable catalogs and
// rebuilds the reverse parent index. Called at startup and on config
// reload.
func (d *DB) SetCatalog(tenants []models.Tenant, bookables []models.Bookable) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tenants = make(map[string]*models.Tenant, len(tenants))
	for i := range tenants {
		t := tenants[i]
		d.tenants[t.ID] = &t
	}

	d.bookables = make(map[string]*models.Bookable, len(bookables))
	d.byTenant = make(map[string][]*models.Bookable)
	d.parents = make(map[string][]string)
	for i := range bookables {
		b := bookables[i]
		d.bookables[b.ID] = &b
		d.byTenant[b.TenantID] = append(d.byTenant[b.TenantID], d.bookables[b.ID])
	}
	for i := range bookables {
		for _, childID := range bookables[i].RelatedBookableIDs {
			d.parents[childID] = append(d.parents[childID], bookables[i].ID)
		}
	}
}

// GetTenant implements domain.TenantStore.
func (d *DB) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tenant, ok := d.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return tenant, nil
}

// GetBookable implements domain.BookableStore.
func (d *DB) GetBookable(_ context.Context, tenantID, id string) (*models.Bookable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	bookable, ok := d.bookables[id]
	if !ok || bookable.TenantID != tenantID {
		return nil, fmt.Errorf("bookable %s: %w", id, ErrNotFound)
	}
	return bookable, nil
}

// GetParents returns the bookables whose related list references id.
func (d *DB) GetParents(_ context.Context, tenantID, id string) ([]*models.Bookable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*models.Bookable
	for _, parentID := range d.parents[id] {
		if parent, ok := d.bookables[parentID]; ok && parent.TenantID == tenantID {
			out = append(out, parent)
		}
	}
	return out, nil
}

// GetDescendants walks the related graph breadth-first, bounded depth.
func (d *DB) GetDescendants(_ context.Context, tenantID, id string) ([]*models.Bookable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []*models.Bookable

	for depth := 0; depth < maxTraversalDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, curID := range frontier {
			cur, ok := d.bookables[curID]
			if !ok {
				continue
			}
			for _, childID := range cur.RelatedBookableIDs {
				if visited[childID] {
					continue
				}
				visited[childID] = true
				child, ok := d.bookables[childID]
				if !ok || child.TenantID != tenantID {
					continue
				}
				out = append(out, child)
				next = append(next, childID)
			}
		}
		frontier = next
	}
	return out, nil
}

// GetTicketsForEvent returns all ticket bookables bound to an event.
func (d *DB) GetTicketsForEvent(_ context.Context, tenantID, eventID string) ([]*models.Bookable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*models.Bookable
	for _, b := range d.byTenant[tenantID] {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListBookables returns the tenant's catalog.
func (d *DB) ListBookables(_ context.Context, tenantID string) ([]*models.Bookable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.Bookable, len(d.byTenant[tenantID]))
	copy(out, d.byTenant[tenantID])
	return out, nil
}
