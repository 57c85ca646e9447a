package checkout

import (
	"context"
	"errors"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/metrics"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"
)

// Options tunes a full check run.
type Options struct {
	// StopOnFirstError surfaces the first typed failure as an error; the
	// remaining checks still complete with side-effect-free reads, their
	// results are discarded.
	StopOnFirstError bool
	// SkipDurationCheck omits the duration-limit check. The calendar
	// calculator probes with this set since duration limits are irrelevant
	// to availability display.
	SkipDurationCheck bool
}

// checkOrder is the canonical result order of the diagnostic path.
var checkOrder = []models.CheckType{
	models.CheckPermissions,
	models.CheckOpeningHours,
	models.CheckBookingDuration,
	models.CheckAvailability,
	models.CheckParentAvailability,
	models.CheckChildBookings,
	models.CheckEventDate,
	models.CheckEventSeats,
	models.CheckMaxBookingDate,
}

type checkFunc func(ctx context.Context, cc *checkContext) (models.CheckResult, error)

// CheckAll runs every check concurrently. With stopOnFirstError the first
// structured failure is returned as a typed error; otherwise every outcome
// is returned tagged success/failure and the error is nil unless resolving
// the request itself failed.
func (v *Validator) CheckAll(ctx context.Context, req Request, stopOnFirstError bool) ([]models.CheckResult, error) {
	return v.CheckAllOpts(ctx, req, Options{StopOnFirstError: stopOnFirstError})
}

// CheckAllOpts is CheckAll with explicit options.
func (v *Validator) CheckAllOpts(ctx context.Context, req Request, opts Options) ([]models.CheckResult, error) {
	cc, err := v.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	checks := map[models.CheckType]checkFunc{
		models.CheckPermissions:        v.checkPermissions,
		models.CheckOpeningHours:       v.checkOpeningHours,
		models.CheckBookingDuration:    v.checkBookingDuration,
		models.CheckAvailability:       v.checkAvailability,
		models.CheckParentAvailability: v.checkParentAvailability,
		models.CheckChildBookings:      v.checkChildBookings,
		models.CheckEventDate:          v.checkEventDate,
		models.CheckEventSeats:         v.checkEventSeats,
		models.CheckMaxBookingDate:     v.checkMaxBookingDate,
	}
	if opts.SkipDurationCheck {
		delete(checks, models.CheckBookingDuration)
	}

	type outcome struct {
		checkType models.CheckType
		result    models.CheckResult
		err       error
	}

	results := make(chan outcome, len(checks))
	for checkType, fn := range checks {
		go func(checkType models.CheckType, fn checkFunc) {
			res, err := fn(ctx, cc)
			results <- outcome{checkType: checkType, result: res, err: err}
		}(checkType, fn)
	}

	collected := make(map[models.CheckType]models.CheckResult, len(checks))
	for i := 0; i < len(checks); i++ {
		out := <-results
		if out.err != nil {
			var checkErr CheckError
			if errors.As(out.err, &checkErr) {
				metrics.IncCheck(string(out.checkType), "failed")
				if opts.StopOnFirstError {
					// Remaining goroutines drain into the buffered
					// channel and are discarded.
					return nil, out.err
				}
				collected[out.checkType] = checkErr.Result()
				continue
			}
			metrics.IncCheck(string(out.checkType), "error")
			if opts.StopOnFirstError {
				return nil, out.err
			}
			// Diagnostic path never throws: a read failure shows up as an
			// unavailable outcome.
			v.log.Error().Err(out.err).Str("check", string(out.checkType)).Msg("check failed to execute")
			collected[out.checkType] = models.CheckResult{
				Type:      out.checkType,
				Available: false,
				Message:   out.err.Error(),
			}
			continue
		}
		metrics.IncCheck(string(out.checkType), "passed")
		collected[out.checkType] = out.result
	}

	ordered := make([]models.CheckResult, 0, len(collected))
	for _, checkType := range checkOrder {
		if res, ok := collected[checkType]; ok {
			ordered = append(ordered, res)
		}
	}
	return ordered, nil
}

// AllAvailable reports whether every outcome passed.
func AllAvailable(results []models.CheckResult) bool {
	for _, res := range results {
		if !res.Available {
			return false
		}
	}
	return true
}
