package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"disputeflow/auth"
	"disputeflow/dispute"
	"disputeflow/test/actors"
	"disputeflow/test/chaos"
	"disputeflow/test/infra"
	"disputeflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// TestDisputeConcurrency races dispute creation, replies, deletion and the
// auto-resolution sweep against each other on a real PostgreSQL, checking the
// schema invariants in oracles/ on every tick.
func TestDisputeConcurrency(t *testing.T) {
	flag.Parse()

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seed := mustSeed(t, ctx, pool)

	repo := dispute.NewRepository(pool)
	svc := dispute.NewService(repo, nil, nil, nil, nil, dispute.ServiceOptions{
		ExternalGroup:    "ringo",
		CounterpartGroup: "sterling",
		StaleThreshold:   24 * time.Hour,
	})
	sweeper := dispute.NewSweeper(svc, time.Hour, nil)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Opener(ctx2, svc, seed.external, stop) })
		g.Go(func() error { return actors.Replier(ctx2, svc, pool, seed.external, stop) })
		g.Go(func() error { return actors.Replier(ctx2, svc, pool, seed.counterpart, stop) })
	}

	g.Go(func() error { return actors.Backdater(ctx2, pool, "ringo", stop) })
	// Two resolvers so the sweep races itself through the reentrancy guard.
	g.Go(func() error { return actors.Resolver(ctx2, sweeper, stop) })
	g.Go(func() error { return actors.Resolver(ctx2, sweeper, stop) })
	g.Go(func() error { return actors.Deleter(ctx2, svc, seed.admin, pool, stop) })

	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s", name, row)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedSubjects struct {
	external    auth.Subject
	counterpart auth.Subject
	admin       auth.Subject
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedSubjects {
	t.Helper()

	insert := func(username, email, roleName, group string) auth.Subject {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO users (username, email, password_hash, role_id, "group")
			VALUES ($1, $2, 'x', (SELECT id FROM roles WHERE name = $3), $4)
			RETURNING id
		`, username, email, roleName, group).Scan(&id)
		if err != nil {
			t.Fatalf("seed user %s: %v", username, err)
		}
		return auth.Subject{UserID: id, Email: email, Role: auth.Role(roleName), Group: group}
	}

	suffix := rand.Int63()
	return seedSubjects{
		external:    insert(fmt.Sprintf("ext-%d", suffix), fmt.Sprintf("ext-%d@example.com", suffix), "user", "ringo"),
		counterpart: insert(fmt.Sprintf("cpt-%d", suffix), fmt.Sprintf("cpt-%d@example.com", suffix), "user", "sterling"),
		admin:       insert(fmt.Sprintf("adm-%d", suffix), fmt.Sprintf("adm-%d@example.com", suffix), "super_admin", "sterling"),
	}
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"disputes", `SELECT id, tracking_id, status, resolved_at, created_at FROM disputes ORDER BY created_at DESC LIMIT 50`},
		{"replies", `SELECT id, dispute_id, "group", created_at FROM replies ORDER BY created_at DESC LIMIT 50`},
		{"categories", `SELECT id, name FROM dispute_categories ORDER BY name LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
