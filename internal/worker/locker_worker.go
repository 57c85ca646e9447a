package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/domain"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/locker"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskAssign    = "assign"
	TaskReassign  = "reassign"
	TaskRelease   = "release"
	TaskReconcile = "reconcile"
)

// LockerTask describes one unit of locker work for a booking.
type LockerTask struct {
	Type       string                     `json:"type"`
	Booking    *models.Booking            `json:"booking,omitempty"`
	OldBooking *models.Booking            `json:"old_booking,omitempty"`
	Claims     []models.LockerReservation `json:"claims,omitempty"`
	RetryCount int                        `json:"retry_count"`
	CreatedAt  time.Time                  `json:"created_at"`
}

// LockerWorker drains locker tasks and applies them through the
// coordinator. Bookings whose backend reservations could not all be
// placed are re-enqueued as reconcile tasks with backoff.
type LockerWorker struct {
	coordinator   *locker.Coordinator
	bookables     domain.BookableStore
	bookings      domain.BookingStore
	redis         *redis.Client
	retryPolicy   locker.RetryPolicy
	queue         chan LockerTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	log           zerolog.Logger
}

// NewLockerWorker builds a worker with sane defaults.
func NewLockerWorker(coordinator *locker.Coordinator, bookables domain.BookableStore, bookings domain.BookingStore, redisClient *redis.Client, retry locker.RetryPolicy, logger *zerolog.Logger) *LockerWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	log := logging.Component(logger, "locker_worker")

	return &LockerWorker{
		coordinator:   coordinator,
		bookables:     bookables,
		bookings:      bookings,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan LockerTask, models.WorkerQueueSize),
		redisQueueKey: "locker:queue",
		deadLetterKey: "locker:deadletter",
		pollInterval:  2 * time.Second,
		log:           log,
	}
}

// Enqueue schedules a task via redis, falling back to the in-memory
// queue when redis is unavailable.
func (w *LockerWorker) Enqueue(ctx context.Context, task LockerTask) error {
	if task.Type == "" {
		return errors.New("task type is required")
	}
	if task.Booking == nil || task.Booking.ID == "" {
		return errors.New("booking is required")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.log.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return errors.New("locker queue full")
	}
}

// Start launches the main loop; stops when ctx is done.
func (w *LockerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("locker worker started")
	defer w.log.Info().Msg("locker worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, t)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *LockerWorker) tryLocalQueue() (LockerTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return LockerTask{}, false
	}
}

func (w *LockerWorker) tryRedis(ctx context.Context) (LockerTask, bool) {
	if w.redis == nil {
		return LockerTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.log.Warn().Err(err).Msg("redis BRPOP error")
		}
		return LockerTask{}, false
	}
	if len(res) != 2 {
		return LockerTask{}, false
	}
	var task LockerTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.log.Error().Err(err).Msg("decode redis task")
		return LockerTask{}, false
	}
	return task, true
}

func (w *LockerWorker) processTask(ctx context.Context, task LockerTask) {
	if err := w.handleTask(ctx, task); err != nil {
		w.retryOrFail(ctx, task, err)
	}
}

func (w *LockerWorker) handleTask(ctx context.Context, task LockerTask) error {
	switch task.Type {
	case TaskAssign:
		w.coordinator.HandleCreate(ctx, task.Booking, task.Claims)
		return w.verifyAssignments(ctx, task.Booking)
	case TaskReassign:
		if task.OldBooking == nil {
			return errors.New("old booking missing")
		}
		w.coordinator.HandleUpdate(ctx, task.OldBooking, task.Booking)
		return nil
	case TaskRelease:
		w.coordinator.HandleCancel(ctx, task.Booking)
		return nil
	case TaskReconcile:
		return w.reconcile(ctx, task.Booking.TenantID, task.Booking.ID)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// reconcile reloads the booking and places backend reservations for any
// locker item still short of its requested amount.
func (w *LockerWorker) reconcile(ctx context.Context, tenantID, bookingID string) error {
	booking, err := w.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}
	if booking.IsRejected {
		return nil
	}

	var shortfalls int
	for _, item := range booking.Items {
		bookable, err := w.bookables.GetBookable(ctx, tenantID, item.BookableID)
		if err != nil || len(bookable.LockerUnits) == 0 {
			continue
		}
		missing := item.Amount - assignedCount(booking, item.BookableID)
		if missing <= 0 {
			continue
		}

		claims, err := w.coordinator.GetAvailableLocker(ctx, bookable, booking.TimeBegin, booking.TimeEnd, missing)
		if err != nil {
			w.log.Warn().Err(err).
				Str("booking_id", booking.ID).
				Str("bookable_id", item.BookableID).
				Msg("no free locker units during reconcile")
			shortfalls++
			continue
		}
		w.coordinator.HandleCreate(ctx, booking, claims)
		if assignedCount(booking, item.BookableID) < item.Amount {
			shortfalls++
		}
	}

	if shortfalls > 0 {
		return fmt.Errorf("booking %s: %d locker items still unassigned", booking.ID, shortfalls)
	}
	return nil
}

// verifyAssignments reports an error when any locker item of the booking
// holds fewer persisted assignments than its requested amount.
func (w *LockerWorker) verifyAssignments(ctx context.Context, booking *models.Booking) error {
	for _, item := range booking.Items {
		bookable, err := w.bookables.GetBookable(ctx, booking.TenantID, item.BookableID)
		if err != nil || len(bookable.LockerUnits) == 0 {
			continue
		}
		if assignedCount(booking, item.BookableID) < item.Amount {
			return fmt.Errorf("booking %s: locker assignments incomplete for %s", booking.ID, item.BookableID)
		}
	}
	return nil
}

func assignedCount(booking *models.Booking, bookableID string) int64 {
	var n int64
	for _, a := range booking.LockerAssignments {
		if a.BookableID == bookableID {
			n++
		}
	}
	return n
}

func (w *LockerWorker) retryOrFail(ctx context.Context, task LockerTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.log.Error().Err(cause).
			Str("type", task.Type).
			Str("booking_id", task.Booking.ID).
			Msg("locker task exhausted retries")
		w.pushDeadLetter(ctx, task)
		return
	}

	// Assign retries degrade to reconcile: the original soft-lock claims
	// have expired, so the units must be picked again.
	next := task
	next.RetryCount = attempt
	if next.Type == TaskAssign {
		next.Type = TaskReconcile
		next.Claims = nil
	}

	delay := w.retryPolicy.NextDelay(attempt)
	w.log.Warn().Err(cause).
		Str("type", task.Type).
		Str("booking_id", task.Booking.ID).
		Dur("delay", delay).
		Msg("locker task failed, scheduling retry")

	time.AfterFunc(delay, func() {
		if err := w.Enqueue(context.Background(), next); err != nil {
			w.log.Error().Err(err).Str("booking_id", next.Booking.ID).Msg("re-enqueue failed")
		}
	})
}

func (w *LockerWorker) pushRedis(ctx context.Context, task LockerTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *LockerWorker) pushDeadLetter(ctx context.Context, task LockerTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.log.Error().Err(err).Msg("encode deadletter task")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.log.Error().Err(err).Msg("deadletter push failed")
	}
}
