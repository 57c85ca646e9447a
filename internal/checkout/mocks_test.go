package checkout

import (
	"context"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockBookables struct {
	mock.Mock
}

func (m *mockBookables) GetBookable(ctx context.Context, tenantID, id string) (*models.Bookable, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bookable), args.Error(1)
}

func (m *mockBookables) GetParents(ctx context.Context, tenantID, id string) ([]*models.Bookable, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bookable), args.Error(1)
}

func (m *mockBookables) GetDescendants(ctx context.Context, tenantID, id string) ([]*models.Bookable, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bookable), args.Error(1)
}

func (m *mockBookables) GetTicketsForEvent(ctx context.Context, tenantID, eventID string) ([]*models.Bookable, error) {
	args := m.Called(ctx, tenantID, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bookable), args.Error(1)
}

func (m *mockBookables) ListBookables(ctx context.Context, tenantID string) ([]*models.Bookable, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bookable), args.Error(1)
}

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookings) GetOverlappingBookings(ctx context.Context, tenantID, bookableID string, begin, end int64) ([]*models.Booking, error) {
	args := m.Called(ctx, tenantID, bookableID, begin, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookings) GetBookingsForBookable(ctx context.Context, tenantID, bookableID string) ([]*models.Booking, error) {
	args := m.Called(ctx, tenantID, bookableID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookings) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *mockBookings) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *mockBookings) CountLockerAssignments(ctx context.Context, tenantID, bookableID, unitID string, begin, end int64) (int64, error) {
	args := m.Called(ctx, tenantID, bookableID, unitID, begin, end)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBookings) SaveLockerAssignment(ctx context.Context, assignment *models.LockerAssignment) error {
	return m.Called(ctx, assignment).Error(0)
}

func (m *mockBookings) DeleteLockerAssignment(ctx context.Context, bookingID, unitID string) error {
	return m.Called(ctx, bookingID, unitID).Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) GetEvent(ctx context.Context, tenantID, id string) (*models.Event, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

type mockTenants struct {
	mock.Mock
}

func (m *mockTenants) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

type mockHolidays struct {
	mock.Mock
}

func (m *mockHolidays) GetHolidays(ctx context.Context, year int, countryCode, stateCode string) ([]models.Holiday, error) {
	args := m.Called(ctx, year, countryCode, stateCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Holiday), args.Error(1)
}

// testEnv wires a validator over mock stores with pass-through defaults:
// no parents, no descendants, no bookings anywhere.
type testEnv struct {
	bookables *mockBookables
	bookings  *mockBookings
	events    *mockEvents
	tenants   *mockTenants
	holidays  *mockHolidays
	validator *Validator
}

func newTestEnv(bookable *models.Bookable, tenant *models.Tenant) *testEnv {
	env := &testEnv{
		bookables: &mockBookables{},
		bookings:  &mockBookings{},
		events:    &mockEvents{},
		tenants:   &mockTenants{},
		holidays:  &mockHolidays{},
	}
	env.bookables.On("GetBookable", mock.Anything, tenant.ID, bookable.ID).Return(bookable, nil)
	env.tenants.On("GetTenant", mock.Anything, tenant.ID).Return(tenant, nil)

	env.validator = NewValidator(env.bookables, env.bookings, env.events, env.tenants, env.holidays, nil)
	return env
}

// noRelations registers empty parent and descendant sets. Register any
// specific relation expectations before calling this; the catch-all would
// shadow them otherwise.
func (e *testEnv) noRelations() *testEnv {
	e.bookables.On("GetParents", mock.Anything, mock.Anything, mock.Anything).Return([]*models.Bookable{}, nil).Maybe()
	e.bookables.On("GetDescendants", mock.Anything, mock.Anything, mock.Anything).Return([]*models.Bookable{}, nil).Maybe()
	return e
}

// noBookings registers empty booking sets for every remaining query.
func (e *testEnv) noBookings() *testEnv {
	e.bookings.On("GetOverlappingBookings", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]*models.Booking{}, nil).Maybe()
	e.bookings.On("GetBookingsForBookable", mock.Anything, mock.Anything, mock.Anything).Return([]*models.Booking{}, nil).Maybe()
	return e
}

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }
