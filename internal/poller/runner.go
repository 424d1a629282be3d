package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/ksef-connector/internal/invoices"
	"github.com/rezonia/ksef-connector/internal/model"
)

// ErrGaveUp is returned when MaxAttempts checks all asked for a retry
var ErrGaveUp = errors.New("status polling gave up")

// Checker is satisfied by *Poller
type Checker interface {
	Check(ctx context.Context, invoiceID, referenceNumber string) Result
}

// Runner re-invokes a Checker with exponential backoff
type Runner struct {
	checker Checker

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int // 0 means unlimited

	logger zerolog.Logger
}

// NewRunner creates a Runner with defaults suited to the Service's processing times
func NewRunner(checker Checker, logger zerolog.Logger) *Runner {
	return &Runner{
		checker:         checker,
		InitialInterval: 2 * time.Second,
		MaxInterval:     2 * time.Minute,
		Multiplier:      2,
		MaxAttempts:     30,
		logger:          logger,
	}
}

// Run checks until Done, ctx ends or attempts are exhausted
func (r *Runner) Run(ctx context.Context, invoiceID, referenceNumber string) error {
	interval := r.InitialInterval
	for attempt := 1; ; attempt++ {
		if r.checker.Check(ctx, invoiceID, referenceNumber) == Done {
			return nil
		}
		if r.MaxAttempts > 0 && attempt >= r.MaxAttempts {
			return ErrGaveUp
		}

		r.logger.Debug().
			Str("invoice_id", invoiceID).
			Int("attempt", attempt).
			Dur("wait", interval).
			Msg("scheduling retry")

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		interval = r.next(interval)
	}
}

// Resume polls every SENT invoice in repo concurrently. It is how pending
// checks survive a process restart.
func (r *Runner) Resume(ctx context.Context, repo invoices.Repository) error {
	list, err := repo.List(ctx)
	if err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, inv := range list {
		if inv.Status != model.StatusSent || inv.ReferenceNumber == "" {
			continue
		}
		wg.Add(1)
		go func(inv model.Invoice) {
			defer wg.Done()
			if err := r.Run(ctx, inv.ID, inv.ReferenceNumber); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(inv)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (r *Runner) next(d time.Duration) time.Duration {
	m := r.Multiplier
	if m < 1 {
		m = 1
	}
	n := time.Duration(float64(d) * m)
	if r.MaxInterval > 0 && n > r.MaxInterval {
		n = r.MaxInterval
	}
	return n
}
