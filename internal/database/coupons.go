package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// GetCoupon returns the coupon or nil when the code is unknown.
func (d *DB) GetCoupon(ctx context.Context, tenantID, code string) (*models.Coupon, error) {
	c := &models.Coupon{}
	err := d.db.QueryRowContext(ctx, `SELECT code, tenant_id, type, value, usage_count, created_at, updated_at
		FROM coupons WHERE code = ? AND tenant_id = ?`, code, tenantID).
		Scan(&c.Code, &c.TenantID, &c.Type, &c.Value, &c.UsageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// CreateCoupon inserts a new coupon code for a tenant.
func (d *DB) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	now := time.Now()
	_, err := d.db.ExecContext(ctx, `INSERT INTO coupons (code, tenant_id, type, value, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		c.Code, c.TenantID, c.Type, c.Value, now, now)
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	c.UsageCount = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// IncrementUsage bumps the redemption counter of a coupon.
func (d *DB) IncrementUsage(ctx context.Context, tenantID, code string) error {
	result, err := d.db.ExecContext(ctx, `UPDATE coupons SET usage_count = usage_count + 1, updated_at = ?
		WHERE code = ? AND tenant_id = ?`, time.Now(), code, tenantID)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("coupon %s: %w", code, ErrNotFound)
	}
	return nil
}
