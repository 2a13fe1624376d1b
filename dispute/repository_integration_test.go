package dispute

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestRepository_Integration connects to a real PostgreSQL via DATABASE_URL
// and exercises the creation transaction, reply reopen and the stale sweep
// against the actual schema.
func TestRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "disputes") || !tableExists(ctx, t, pool, "replies") {
		t.Skip("database schema missing; apply the files under migrations/ first")
	}

	repo := NewRepository(pool)

	// Seed an owner; disputes reference users.
	var userID string
	email := fmt.Sprintf("owner+%d@example.com", time.Now().UnixNano())
	err = pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, role_id, "group")
		VALUES ($1, $2, 'x', (SELECT id FROM roles WHERE name = 'user'), 'ringo')
		RETURNING id
	`, fmt.Sprintf("owner-%d", time.Now().UnixNano()), email).Scan(&userID)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	category := fmt.Sprintf("Billing-%d", time.Now().UnixNano())

	params := CreateDisputeParams{
		UserID:          userID,
		Title:           "Failed transfer",
		CategoryName:    category,
		SubcategoryName: "Refund",
		Description:     "Transfer debited but not credited",
		StartTime:       time.Now().Add(-2 * time.Hour).UTC(),
		EndTime:         time.Now().Add(-1 * time.Hour).UTC(),
		TrackingID:      mustTrackingID(t),
	}

	created, err := repo.CreateDispute(ctx, params)
	if err != nil {
		t.Fatalf("create dispute: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM replies WHERE dispute_id IN (SELECT id FROM disputes WHERE user_id = $1)`, userID)
		pool.Exec(ctx2, `DELETE FROM dispute_files WHERE dispute_id IN (SELECT id FROM disputes WHERE user_id = $1)`, userID)
		pool.Exec(ctx2, `DELETE FROM disputes WHERE user_id = $1`, userID)
		pool.Exec(ctx2, `DELETE FROM dispute_subcategories WHERE category_id IN (SELECT id FROM dispute_categories WHERE name LIKE 'Billing-%')`)
		pool.Exec(ctx2, `DELETE FROM dispute_categories WHERE name LIKE 'Billing-%'`)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = $1`, userID)
	})

	if created.Status != StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	// Same names resolve to the same category rows, no duplicates.
	second, err := repo.CreateDispute(ctx, func() CreateDisputeParams {
		p := params
		p.TrackingID = mustTrackingID(t)
		return p
	}())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.CategoryID != created.CategoryID || second.SubcategoryID != created.SubcategoryID {
		t.Fatal("same category names should resolve to the same rows")
	}

	// Duplicate tracking id is a conflict the service can retry on.
	dup := params
	dup.TrackingID = created.TrackingID
	if _, err := repo.CreateDispute(ctx, dup); !errors.Is(err, ErrTrackingConflict) {
		t.Fatalf("expected ErrTrackingConflict, got %v", err)
	}

	// Reply to a resolved dispute reopens it inside the same transaction.
	if err := repo.Update(ctx, UpdateDisputeParams{
		ID:            created.ID,
		Title:         created.Title,
		CategoryID:    created.CategoryID,
		SubcategoryID: created.SubcategoryID,
		Description:   created.Description,
		StartTime:     created.StartTime,
		EndTime:       created.EndTime,
		Status:        StatusResolved,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	outcome, err := repo.AddReply(ctx, AddReplyParams{
		DisputeID: created.ID,
		UserID:    userID,
		Email:     email,
		Group:     "ringo",
		Text:      "still broken",
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !outcome.Reopened {
		t.Fatal("reply to resolved dispute should reopen it")
	}
	if outcome.TrackingID != created.TrackingID {
		t.Fatalf("outcome tracking id %q", outcome.TrackingID)
	}

	reloaded, err := repo.GetByID(ctx, created.ID, "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != StatusInProgress {
		t.Fatalf("expected in_progress after reopen, got %s", reloaded.Status)
	}
	if reloaded.ResolvedAt != nil {
		t.Fatal("resolved_at should be cleared on reopen")
	}

	// Backdate the external reply past the threshold; the sweep resolves it.
	if _, err := pool.Exec(ctx,
		`UPDATE replies SET created_at = now() - interval '25 hours', updated_at = now() - interval '25 hours' WHERE dispute_id = $1`,
		created.ID); err != nil {
		t.Fatalf("backdate reply: %v", err)
	}

	now := time.Now().UTC()
	resolved, err := repo.ResolveStale(ctx, ResolveStaleParams{
		ExternalGroup:    "ringo",
		CounterpartGroup: "sterling",
		Cutoff:           now.Add(-24 * time.Hour),
		Now:              now,
	})
	if err != nil {
		t.Fatalf("resolve stale: %v", err)
	}
	if resolved < 1 {
		t.Fatalf("expected at least one resolution, got %d", resolved)
	}

	reloaded, err = repo.GetByID(ctx, created.ID, "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != StatusResolved {
		t.Fatalf("expected resolved after sweep, got %s", reloaded.Status)
	}

	// Second pass is idempotent for this dispute.
	again, err := repo.ResolveStale(ctx, ResolveStaleParams{
		ExternalGroup:    "ringo",
		CounterpartGroup: "sterling",
		Cutoff:           now.Add(-24 * time.Hour),
		Now:              now,
	})
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	var status Status
	if err := pool.QueryRow(ctx, `SELECT status FROM disputes WHERE id = $1`, created.ID).Scan(&status); err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status != StatusResolved {
		t.Fatalf("second sweep changed status to %s (resolved %d)", status, again)
	}

	// Owner-scoped reads exclude other users.
	if _, err := repo.GetByID(ctx, created.ID, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign scope: expected ErrNotFound, got %v", err)
	}
}

func mustTrackingID(t *testing.T) string {
	t.Helper()
	id, err := NewTrackingID()
	if err != nil {
		t.Fatalf("tracking id: %v", err)
	}
	return id
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
