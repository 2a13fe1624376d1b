package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the dispute does not exist in the caller's scope.
	ErrNotFound = errors.New("dispute: not found")
	// ErrTrackingConflict signals a tracking id collision at insert time.
	ErrTrackingConflict = errors.New("dispute: tracking id conflict")
)

// Repository handles data access for disputes, categories, files and replies.
// Multi-statement operations run inside a transaction with rollback on any
// failure.
type Repository interface {
	CreateDispute(ctx context.Context, params CreateDisputeParams) (Dispute, error)
	GetByID(ctx context.Context, disputeID, ownerScope string) (Dispute, error)
	GetDetail(ctx context.Context, disputeID, ownerScope string, withReplies bool) (DisputeView, error)
	List(ctx context.Context, ownerScope string) ([]Dispute, error)
	Update(ctx context.Context, params UpdateDisputeParams) error
	Delete(ctx context.Context, disputeID, ownerScope string) error
	SaveFile(ctx context.Context, disputeID, filePath, publicLink string) error
	AddReply(ctx context.Context, params AddReplyParams) (ReplyOutcome, error)
	ListCatalog(ctx context.Context) ([]Category, []Subcategory, error)
	StatusCounts(ctx context.Context) ([]StatusCount, error)
	CategoryCounts(ctx context.Context) ([]CategoryCount, error)
	Trends(ctx context.Context) ([]TrendPoint, error)
	ResolveStale(ctx context.Context, params ResolveStaleParams) (int64, error)
}

// CreateDisputeParams enumerates the writes executed inside the creation
// transaction. Category and subcategory are resolved by exact name,
// created when absent.
type CreateDisputeParams struct {
	UserID          string
	Title           string
	CategoryName    string
	SubcategoryName string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	TrackingID      string
}

// UpdateDisputeParams carries a full dispute update; partial updates are not
// supported.
type UpdateDisputeParams struct {
	ID            string
	Title         string
	CategoryID    string
	SubcategoryID string
	Description   string
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
}

// AddReplyParams inserts one reply with a denormalized snapshot of the
// replier's email and group.
type AddReplyParams struct {
	DisputeID string
	UserID    string
	Email     string
	Group     string
	Text      string
}

// ReplyOutcome reports what the reply transaction did.
type ReplyOutcome struct {
	Reply      Reply
	TrackingID string
	Reopened   bool
}

// ResolveStaleParams drives the auto-resolution sweep. A dispute is resolved
// when its most recent ExternalGroup reply is at or before Cutoff and no
// CounterpartGroup reply was posted after it.
type ResolveStaleParams struct {
	ExternalGroup    string
	CounterpartGroup string
	Cutoff           time.Time
	Now              time.Time
}

const disputeColumns = `id, user_id, title, category_id, subcategory_id, description,
	start_time, end_time, tracking_id, status, created_at, updated_at, resolved_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateDispute resolves category and subcategory by name (creating them when
// absent, exact case-sensitive match) and inserts the dispute, all in one
// transaction. A tracking id collision surfaces as ErrTrackingConflict so the
// caller can retry with fresh randomness.
func (r *PGRepository) CreateDispute(ctx context.Context, params CreateDisputeParams) (Dispute, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin create tx: %w", err)
	}
	defer tx.Rollback(ctx)

	categoryID, err := findOrCreateCategory(ctx, tx, params.CategoryName)
	if err != nil {
		return Dispute{}, err
	}
	subcategoryID, err := findOrCreateSubcategory(ctx, tx, params.SubcategoryName, categoryID)
	if err != nil {
		return Dispute{}, err
	}

	insertSQL := `
		INSERT INTO disputes (user_id, title, category_id, subcategory_id, description,
			start_time, end_time, tracking_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING ` + disputeColumns

	var d Dispute
	err = scanDispute(tx.QueryRow(ctx, insertSQL,
		params.UserID, params.Title, categoryID, subcategoryID, params.Description,
		params.StartTime, params.EndTime, params.TrackingID), &d)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "disputes_tracking_id_key" {
			return Dispute{}, ErrTrackingConflict
		}
		return Dispute{}, fmt.Errorf("dispute: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit create tx: %w", err)
	}
	return d, nil
}

func findOrCreateCategory(ctx context.Context, tx pgx.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM dispute_categories WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("dispute: find category: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO dispute_categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET updated_at = dispute_categories.updated_at
		RETURNING id`, name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("dispute: create category: %w", err)
	}
	return id, nil
}

func findOrCreateSubcategory(ctx context.Context, tx pgx.Tx, name, categoryID string) (string, error) {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id FROM dispute_subcategories WHERE name = $1 AND category_id = $2`,
		name, categoryID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("dispute: find subcategory: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO dispute_subcategories (name, category_id) VALUES ($1, $2)
		ON CONFLICT (name, category_id) DO UPDATE SET updated_at = dispute_subcategories.updated_at
		RETURNING id`, name, categoryID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("dispute: create subcategory: %w", err)
	}
	return id, nil
}

// GetByID fetches one dispute. An empty ownerScope reads unscoped; otherwise
// the row must be owned by that user.
func (r *PGRepository) GetByID(ctx context.Context, disputeID, ownerScope string) (Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	args := []any{disputeID}
	if ownerScope != "" {
		query += ` AND user_id = $2`
		args = append(args, ownerScope)
	}

	var d Dispute
	if err := scanDispute(r.pool.QueryRow(ctx, query, args...), &d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get by id: %w", err)
	}
	return d, nil
}

// GetDetail assembles the dispute with its category names, attachment path
// and (optionally) reply thread inside a single transaction so the read
// observes a consistent snapshot.
func (r *PGRepository) GetDetail(ctx context.Context, disputeID, ownerScope string, withReplies bool) (DisputeView, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return DisputeView{}, fmt.Errorf("dispute: begin detail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	args := []any{disputeID}
	if ownerScope != "" {
		query += ` AND user_id = $2`
		args = append(args, ownerScope)
	}

	var view DisputeView
	if err := scanDispute(tx.QueryRow(ctx, query, args...), &view.Dispute); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DisputeView{}, ErrNotFound
		}
		return DisputeView{}, fmt.Errorf("dispute: detail fetch: %w", err)
	}

	if err := tx.QueryRow(ctx, `SELECT name FROM dispute_categories WHERE id = $1`,
		view.CategoryID).Scan(&view.Category); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return DisputeView{}, fmt.Errorf("dispute: detail category: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT name FROM dispute_subcategories WHERE id = $1`,
		view.SubcategoryID).Scan(&view.Subcategory); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return DisputeView{}, fmt.Errorf("dispute: detail subcategory: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT file_path FROM dispute_files WHERE dispute_id = $1 LIMIT 1`,
		disputeID).Scan(&view.FilePath); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return DisputeView{}, fmt.Errorf("dispute: detail file: %w", err)
	}

	if withReplies {
		rows, err := tx.Query(ctx, `
			SELECT id, dispute_id, COALESCE(user_id::text, ''), email, "group", reply, created_at, updated_at
			FROM replies WHERE dispute_id = $1 ORDER BY created_at`, disputeID)
		if err != nil {
			return DisputeView{}, fmt.Errorf("dispute: detail replies: %w", err)
		}
		defer rows.Close()

		view.Replies = make([]Reply, 0, 8)
		for rows.Next() {
			var rep Reply
			if err := rows.Scan(&rep.ID, &rep.DisputeID, &rep.UserID, &rep.Email,
				&rep.Group, &rep.Reply, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
				return DisputeView{}, fmt.Errorf("dispute: scan reply: %w", err)
			}
			view.Replies = append(view.Replies, rep)
		}
		if err := rows.Err(); err != nil {
			return DisputeView{}, fmt.Errorf("dispute: iterate replies: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return DisputeView{}, fmt.Errorf("dispute: commit detail tx: %w", err)
	}
	return view, nil
}

// List returns disputes with their attachment paths joined. An empty
// ownerScope lists all rows.
func (r *PGRepository) List(ctx context.Context, ownerScope string) ([]Dispute, error) {
	query := `
		SELECT d.id, d.user_id, d.title, d.category_id, d.subcategory_id, d.description,
			d.start_time, d.end_time, d.tracking_id, d.status, d.created_at, d.updated_at,
			d.resolved_at, COALESCE(f.file_path, '')
		FROM disputes d
		LEFT JOIN dispute_files f ON f.dispute_id = d.id
	`
	args := []any{}
	if ownerScope != "" {
		query += ` WHERE d.user_id = $1`
		args = append(args, ownerScope)
	}
	query += ` ORDER BY d.created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Dispute, 0, 8)
	for rows.Next() {
		var d Dispute
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Title, &d.CategoryID, &d.SubcategoryID, &d.Description,
			&d.StartTime, &d.EndTime, &d.TrackingID, &d.Status, &d.CreatedAt, &d.UpdatedAt,
			&d.ResolvedAt, &d.FilePath); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// Update replaces every mutable field. ResolvedAt is stamped when the status
// moves to resolved and cleared when it moves away.
func (r *PGRepository) Update(ctx context.Context, params UpdateDisputeParams) error {
	const query = `
		UPDATE disputes
		SET title = $1, category_id = $2, subcategory_id = $3, description = $4,
		    start_time = $5, end_time = $6, status = $7,
		    resolved_at = CASE WHEN $7 = 'resolved' THEN COALESCE(resolved_at, now()) ELSE NULL END,
		    updated_at = now()
		WHERE id = $8
	`

	tag, err := r.pool.Exec(ctx, query,
		params.Title, params.CategoryID, params.SubcategoryID, params.Description,
		params.StartTime, params.EndTime, params.Status, params.ID)
	if err != nil {
		return fmt.Errorf("dispute: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a dispute. An empty ownerScope deletes unconditionally;
// otherwise the row must still be owner-matched at deletion time.
func (r *PGRepository) Delete(ctx context.Context, disputeID, ownerScope string) error {
	query := `DELETE FROM disputes WHERE id = $1`
	args := []any{disputeID}
	if ownerScope != "" {
		query += ` AND user_id = $2`
		args = append(args, ownerScope)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("dispute: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveFile records the attachment URL for a dispute, overwriting any
// existing file row rather than appending.
func (r *PGRepository) SaveFile(ctx context.Context, disputeID, filePath, publicLink string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE dispute_files
		SET file_path = $2, public_folder_link = $3, updated_at = now()
		WHERE dispute_id = $1`, disputeID, filePath, publicLink)
	if err != nil {
		return fmt.Errorf("dispute: update file: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO dispute_files (dispute_id, file_path, public_folder_link)
		VALUES ($1, $2, $3)`, disputeID, filePath, publicLink)
	if err != nil {
		return fmt.Errorf("dispute: insert file: %w", err)
	}
	return nil
}

// AddReply inserts a reply and, when the dispute is resolved, flips it back
// to in_progress first. Both writes share one transaction.
func (r *PGRepository) AddReply(ctx context.Context, params AddReplyParams) (ReplyOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ReplyOutcome{}, fmt.Errorf("dispute: begin reply tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status     Status
		trackingID string
	)
	err = tx.QueryRow(ctx,
		`SELECT status, tracking_id FROM disputes WHERE id = $1 FOR UPDATE`,
		params.DisputeID).Scan(&status, &trackingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReplyOutcome{}, ErrNotFound
		}
		return ReplyOutcome{}, fmt.Errorf("dispute: reply fetch: %w", err)
	}

	outcome := ReplyOutcome{TrackingID: trackingID}
	if status == StatusResolved {
		if _, err := tx.Exec(ctx,
			`UPDATE disputes SET status = 'in_progress', resolved_at = NULL, updated_at = now() WHERE id = $1`,
			params.DisputeID); err != nil {
			return ReplyOutcome{}, fmt.Errorf("dispute: reopen: %w", err)
		}
		outcome.Reopened = true
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO replies (dispute_id, user_id, email, "group", reply)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
		RETURNING id, dispute_id, COALESCE(user_id::text, ''), email, "group", reply, created_at, updated_at`,
		params.DisputeID, params.UserID, params.Email, params.Group, params.Text).
		Scan(&outcome.Reply.ID, &outcome.Reply.DisputeID, &outcome.Reply.UserID,
			&outcome.Reply.Email, &outcome.Reply.Group, &outcome.Reply.Reply,
			&outcome.Reply.CreatedAt, &outcome.Reply.UpdatedAt)
	if err != nil {
		return ReplyOutcome{}, fmt.Errorf("dispute: insert reply: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ReplyOutcome{}, fmt.Errorf("dispute: commit reply tx: %w", err)
	}
	return outcome, nil
}

// ListCatalog returns all categories and subcategories.
func (r *PGRepository) ListCatalog(ctx context.Context) ([]Category, []Subcategory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM dispute_categories ORDER BY name`)
	if err != nil {
		return nil, nil, fmt.Errorf("dispute: list categories: %w", err)
	}
	defer rows.Close()

	cats := make([]Category, 0, 8)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, nil, fmt.Errorf("dispute: scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("dispute: iterate categories: %w", err)
	}

	subRows, err := r.pool.Query(ctx,
		`SELECT id, name, category_id FROM dispute_subcategories ORDER BY name`)
	if err != nil {
		return nil, nil, fmt.Errorf("dispute: list subcategories: %w", err)
	}
	defer subRows.Close()

	subs := make([]Subcategory, 0, 8)
	for subRows.Next() {
		var s Subcategory
		if err := subRows.Scan(&s.ID, &s.Name, &s.CategoryID); err != nil {
			return nil, nil, fmt.Errorf("dispute: scan subcategory: %w", err)
		}
		subs = append(subs, s)
	}
	if err := subRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("dispute: iterate subcategories: %w", err)
	}

	return cats, subs, nil
}

// StatusCounts groups disputes by status.
func (r *PGRepository) StatusCounts(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(id) FROM disputes GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("dispute: status counts: %w", err)
	}
	defer rows.Close()

	out := make([]StatusCount, 0, 3)
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("dispute: scan status count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryCounts groups disputes by category name.
func (r *PGRepository) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(c.name, ''), COUNT(d.id)
		FROM disputes d
		LEFT JOIN dispute_categories c ON d.category_id = c.id
		GROUP BY c.name ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("dispute: category counts: %w", err)
	}
	defer rows.Close()

	out := make([]CategoryCount, 0, 8)
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("dispute: scan category count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Trends counts disputes created per day, oldest first.
func (r *PGRepository) Trends(ctx context.Context) ([]TrendPoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(DATE(created_at), 'YYYY-MM-DD'), COUNT(id)
		FROM disputes GROUP BY DATE(created_at) ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("dispute: trends: %w", err)
	}
	defer rows.Close()

	out := make([]TrendPoint, 0, 8)
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, fmt.Errorf("dispute: scan trend: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResolveStale marks disputes resolved when the most recent external-group
// reply is at or before the cutoff and no counterpart reply followed it.
// The status guard makes re-runs no-ops; returns the number of transitions.
func (r *PGRepository) ResolveStale(ctx context.Context, params ResolveStaleParams) (int64, error) {
	const query = `
		UPDATE disputes d
		SET status = 'resolved', resolved_at = $4, updated_at = $4
		FROM (
			SELECT dispute_id, MAX(updated_at) AS last_external
			FROM replies
			WHERE "group" = $1
			GROUP BY dispute_id
		) le
		WHERE d.id = le.dispute_id
		  AND d.status <> 'resolved'
		  AND le.last_external <= $3
		  AND NOT EXISTS (
			SELECT 1 FROM replies r2
			WHERE r2.dispute_id = d.id
			  AND r2."group" = $2
			  AND r2.updated_at > le.last_external
		  )
	`

	tag, err := r.pool.Exec(ctx, query,
		params.ExternalGroup, params.CounterpartGroup, params.Cutoff, params.Now)
	if err != nil {
		return 0, fmt.Errorf("dispute: resolve stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDispute(row pgx.Row, d *Dispute) error {
	return row.Scan(
		&d.ID, &d.UserID, &d.Title, &d.CategoryID, &d.SubcategoryID, &d.Description,
		&d.StartTime, &d.EndTime, &d.TrackingID, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&d.ResolvedAt,
	)
}
