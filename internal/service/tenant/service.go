package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/tenant-domains/internal/handle"
	"github.com/ignite/tenant-domains/internal/pkg/distlock"
	"github.com/ignite/tenant-domains/internal/pkg/logger"
	"github.com/ignite/tenant-domains/internal/provisioning"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	releaseTimeout      = 5 * time.Second
)

// Provisioner runs the email-domain orchestration for a handle.
type Provisioner interface {
	Provision(ctx context.Context, raw string) *provisioning.ProvisioningResult
	Deprovision(ctx context.Context, raw string) *provisioning.DeprovisioningResult
}

// Service is safe for concurrent use. Runs for different handles proceed
// in parallel; a second run for a handle that is busy is refused.
type Service struct {
	prov    Provisioner
	locks   distlock.Locker
	journal Repository
	// renewEvery overrides the lock heartbeat interval (default TTL/3).
	renewEvery time.Duration
}

// NewService creates a tenant service. A nil locker falls back to
// in-process locks; a nil journal disables run recording.
func NewService(prov Provisioner, locks distlock.Locker, journal Repository) *Service {
	if locks == nil {
		locks = distlock.NewLocalLocker()
	}
	return &Service{prov: prov, locks: locks, journal: journal}
}

// HasJournal reports whether runs are being recorded.
func (s *Service) HasJournal() bool { return s.journal != nil }

// LockKey is the lock name serializing operations on a handle.
func LockKey(h string) string { return "tenant-domain:" + h }

// ProvisionEmailDomain sets up the sending subdomain for a tenant. The
// returned result may report partial failure; the error is only set when
// the run did not start.
func (s *Service) ProvisionEmailDomain(ctx context.Context, raw string) (*provisioning.ProvisioningResult, error) {
	h := handle.Normalize(raw)
	if !handle.Valid(h) {
		return nil, ErrInvalidHandle
	}

	release, err := s.acquire(ctx, h)
	if err != nil {
		return nil, err
	}
	defer release()

	res := s.prov.Provision(ctx, h)

	success := res.OverallSuccess
	s.record(ctx, &Run{
		Handle:         h,
		Operation:      OperationProvision,
		OverallSuccess: &success,
		Steps:          res.Steps,
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
	})
	return res, nil
}

// DeprovisionEmailDomain tears down the sending subdomain for a tenant.
// Tenant deletion proceeds regardless of the itemized outcome.
func (s *Service) DeprovisionEmailDomain(ctx context.Context, raw string) (*provisioning.DeprovisioningResult, error) {
	h := handle.Normalize(raw)
	if !handle.Valid(h) {
		return nil, ErrInvalidHandle
	}

	release, err := s.acquire(ctx, h)
	if err != nil {
		return nil, err
	}
	defer release()

	res := s.prov.Deprovision(ctx, h)

	s.record(ctx, &Run{
		Handle:     h,
		Operation:  OperationDeprovision,
		Steps:      res.Steps,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	})
	return res, nil
}

// History returns recent journaled runs for a handle, newest first.
func (s *Service) History(ctx context.Context, raw string, limit int) ([]Run, error) {
	h := handle.Normalize(raw)
	if !handle.Valid(h) {
		return nil, ErrInvalidHandle
	}
	if s.journal == nil {
		return nil, ErrJournalUnavailable
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	runs, err := s.journal.ListByHandle(ctx, h, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs for %s: %w", h, err)
	}
	return runs, nil
}

func (s *Service) acquire(ctx context.Context, h string) (func(), error) {
	lock := s.locks.NewLock(LockKey(h))
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock for %s: %w", h, err)
	}
	if !ok {
		logger.Info("tenant: operation already in progress", "handle", h)
		return nil, ErrOperationInProgress
	}

	stop := s.keepAlive(ctx, lock, h)
	return func() {
		stop()
		// Release even if the request context is already done.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lock.Release(rctx); err != nil {
			logger.Error("tenant: releasing lock failed", "handle", h, "error", err)
		}
	}, nil
}

// keepAlive renews an expiring lock until the returned stop func is called,
// so a run that outlasts the lock TTL keeps exclusive use of the handle.
func (s *Service) keepAlive(ctx context.Context, lock distlock.DistLock, h string) func() {
	r, ok := lock.(distlock.Renewable)
	if !ok || r.TTL() <= 0 {
		return func() {}
	}
	every := s.renewEvery
	if every <= 0 {
		every = r.TTL() / 3
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
				err := r.Extend(ectx, r.TTL())
				cancel()
				if errors.Is(err, distlock.ErrLockLost) {
					logger.Error("tenant: lock lost during run", "handle", h)
					return
				}
				if err != nil {
					logger.Warn("tenant: extending lock failed", "handle", h, "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Service) record(ctx context.Context, run *Run) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("tenant: journaling run failed", "handle", run.Handle, "operation", run.Operation, "error", err)
		return
	}
	logger.Debug("tenant: run journaled", "handle", run.Handle, "operation", run.Operation, "id", run.ID)
}
