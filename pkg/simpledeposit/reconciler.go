package simpledeposit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// PollArchive runs one reconciliation pass: every pending deposit record is
// checked against the archive and moved to deposited or failed when the
// backend reports a terminal state. The pass is idempotent and cheap to
// re-run; scheduling cadence belongs to the caller. Transient poll failures
// leave their records pending and are collected on the result.
func (s *service) PollArchive(ctx context.Context) (*ReconcileResult, error) {
	pending, err := s.repository.ListPendingDeposits(ctx)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Polled: len(pending)}
	for _, rec := range pending {
		status, err := s.archive.PollStatus(ctx, rec.DepositID)
		if err != nil {
			result.Errors = append(result.Errors,
				&ArchiveError{DepositID: rec.DepositID, Op: "poll_status", Err: err})
			result.StillPending++
			continue
		}

		switch status {
		case DepositStatusDeposited:
			changed, err := s.repository.UpdateDepositStatus(ctx, rec.DepositID, DepositStatusDeposited)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if !changed {
				// A concurrent pass already resolved this record.
				continue
			}
			result.Deposited++
			s.resolveCanonical(ctx, rec)
			rec.Status = DepositStatusDeposited
			s.dispatcher.Fire(DepositCompletedEvent{Record: rec})

		case DepositStatusFailed:
			changed, err := s.repository.UpdateDepositStatus(ctx, rec.DepositID, DepositStatusFailed)
			if err != nil {
				result.Errors = append(result.Errors, err)
				continue
			}
			if !changed {
				continue
			}
			result.Failed++
			rec.Status = DepositStatusFailed
			s.dispatcher.Fire(DepositFailedEvent{Record: rec})

		default:
			// Still processing; the next pass will look again.
			result.StillPending++
		}
	}

	if len(result.Errors) > 0 {
		return result, errors.Join(result.Errors...)
	}
	return result, nil
}

// resolveCanonical refreshes the cached representation of a newly durable
// object so downstream reads see consistent data without re-hitting the
// archive. Collections carry member listings, so they always resolve.
func (s *service) resolveCanonical(ctx context.Context, rec *DepositRecord) {
	if rec.ObjectType != ObjectTypeCollection && rec.ParentDepositID != "" {
		return
	}
	obj, err := s.archive.Retrieve(ctx, rec.DepositID)
	if err != nil {
		slog.Warn("canonical resolution failed", "deposit_id", rec.DepositID, "error", err)
		return
	}
	if err := s.repository.SaveBusinessObject(ctx, obj); err != nil {
		slog.Warn("caching canonical object failed", "deposit_id", rec.DepositID, "error", err)
	}
}

// WaitFor repeatedly evaluates cond with a fixed inter-attempt delay until
// it reports done, the attempts are exhausted, or the context ends.
// Exhaustion returns ErrAwaitTimeout: a caller-level timeout, not a
// reconciler failure. Whatever was being waited for continues independently.
func WaitFor(ctx context.Context, policy RetryPolicy, cond func(context.Context) (bool, error)) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultRetryPolicy.MaxAttempts
	}
	interval := policy.Interval
	if interval <= 0 {
		interval = DefaultRetryPolicy.Interval
	}

	for attempt := 0; attempt < attempts; attempt++ {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return ErrAwaitTimeout
}

// AwaitTerminal drives reconciliation passes until every given deposit id is
// terminal or the policy is exhausted. The records stay pending on timeout
// and will still be resolved by a later background pass.
func (s *service) AwaitTerminal(ctx context.Context, depositIDs []string, policy RetryPolicy) error {
	return WaitFor(ctx, policy, func(ctx context.Context) (bool, error) {
		if _, err := s.PollArchive(ctx); err != nil {
			// Transient archive trouble: keep waiting, later attempts may
			// find the backend reachable again.
			slog.Debug("reconcile pass reported errors during wait", "error", err)
		}
		for _, id := range depositIDs {
			rec, err := s.repository.GetDepositRecord(ctx, id)
			if err != nil {
				return false, err
			}
			if !rec.Status.IsTerminal() {
				return false, nil
			}
		}
		return true, nil
	})
}
