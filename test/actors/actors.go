package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/auth"
	"disputeflow/dispute"
)

var categories = []string{"Billing", "Transfers", "Cards", "Onboarding"}
var subcategories = []string{"Refund", "Chargeback", "Delay", "Other"}

// Opener creates disputes through the service layer, exercising the tracking
// id retry path and the find-or-create category transaction under contention.
func Opener(ctx context.Context, svc *dispute.Service, owner auth.Subject, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		start := time.Now().Add(-time.Duration(1+rand.Intn(48)) * time.Hour)
		_, err := svc.Create(ctx, owner, dispute.CreateRequest{
			Title:           fmt.Sprintf("stress dispute %d", rand.Int63()),
			CategoryName:    categories[rand.Intn(len(categories))],
			SubcategoryName: subcategories[rand.Intn(len(subcategories))],
			Description:     "generated under load",
			StartTime:       start,
			EndTime:         start.Add(time.Hour),
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("opener: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Replier appends replies to random disputes as the given subject, racing the
// sweep on the reopen transition.
func Replier(ctx context.Context, svc *dispute.Service, pool *pgxpool.Pool, replier auth.Subject, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var disputeID string
		err := pool.QueryRow(ctx, `SELECT id FROM disputes ORDER BY random() LIMIT 1`).Scan(&disputeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("replier pick: %w", err)
		}

		_, err = svc.AddReply(ctx, replier, disputeID, "stress reply")
		// The picked dispute may have been deleted between select and reply.
		if err != nil && !errors.Is(err, dispute.ErrValidation) && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("replier: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Backdater pushes random external-group replies past the staleness threshold
// so the sweep always has candidates.
func Backdater(ctx context.Context, pool *pgxpool.Pool, externalGroup string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := pool.Exec(ctx, `
			UPDATE replies
			SET created_at = created_at - interval '30 hours',
			    updated_at = updated_at - interval '30 hours'
			WHERE id IN (
				SELECT id FROM replies WHERE "group" = $1 ORDER BY random() LIMIT 1
			)`, externalGroup)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("backdater: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Resolver hammers the sweep entry point. Overlapping calls exercise the
// reentrancy guard; concurrent calls against the same rows exercise the
// idempotent resolution predicate.
func Resolver(ctx context.Context, sweeper *dispute.Sweeper, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		sweeper.Sweep(ctx)
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Deleter removes random disputes with owner scope disabled, racing repliers
// and the sweep on row visibility.
func Deleter(ctx context.Context, svc *dispute.Service, admin auth.Subject, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var disputeID string
		err := pool.QueryRow(ctx, `SELECT id FROM disputes ORDER BY random() LIMIT 1`).Scan(&disputeID)
		if err == nil {
			err = svc.Delete(ctx, admin, disputeID)
			// Already gone is fine under contention.
			if err != nil && !errors.Is(err, dispute.ErrNotFound) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("deleter: %w", err)
			}
		} else if !errors.Is(err, pgx.ErrNoRows) && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("deleter pick: %w", err)
		}
		time.Sleep(time.Duration(300+rand.Intn(300)) * time.Millisecond)
	}
}
