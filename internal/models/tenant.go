package models

import "time"

// TenantRole maps a role id to its member users. Permission and
// free-booking role lists on bookables resolve through these.
type TenantRole struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	UserIDs []string `yaml:"user_ids" json:"user_ids,omitempty"`
}

// Tenant carries the per-tenant engine configuration. Tenants are declared
// in the catalog config alongside their bookables.
type Tenant struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	// MaxAdvanceMonths is the advance-booking horizon: a booking may not
	// start later than this many months from now.
	MaxAdvanceMonths int `yaml:"max_advance_months" json:"max_advance_months"`

	// Holiday calendar scope for price categories.
	CountryCode string `yaml:"country_code" json:"country_code"`
	StateCode   string `yaml:"state_code" json:"state_code"`

	// Timezone is the IANA zone daily price segments and schedule rules
	// are evaluated in. Empty means UTC.
	Timezone string `yaml:"timezone" json:"timezone"`

	Roles []TenantRole `yaml:"roles" json:"roles,omitempty"`
}

// Location resolves the tenant timezone, falling back to UTC.
func (t *Tenant) Location() *time.Location {
	if t == nil || t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AdvanceHorizonMonths returns the configured horizon or the default.
func (t *Tenant) AdvanceHorizonMonths() int {
	if t == nil || t.MaxAdvanceMonths <= 0 {
		return DefaultMaxAdvanceMonths
	}
	return t.MaxAdvanceMonths
}

// RolesOfUser resolves all role ids the user belongs to.
func (t *Tenant) RolesOfUser(userID string) []string {
	if t == nil {
		return nil
	}
	var roles []string
	for _, role := range t.Roles {
		for _, id := range role.UserIDs {
			if id == userID {
				roles = append(roles, role.ID)
				break
			}
		}
	}
	return roles
}
