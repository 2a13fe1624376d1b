package dispute

import "time"

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// valid reports whether s is a member of the reference status set.
func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

// Dispute mirrors the disputes table. The owner (UserID) is set at creation
// and never reassigned; TrackingID is unique and immutable once assigned.
type Dispute struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	CategoryID    string     `json:"category_id"`
	SubcategoryID string     `json:"subcategory_id"`
	Description   string     `json:"description"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	TrackingID    string     `json:"tracking_id"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`

	// FilePath is the joined attachment URL, empty when none exists.
	FilePath string `json:"file_path,omitempty"`
}

// Category is a dispute category, created lazily at dispute-creation time.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Subcategory belongs to exactly one category.
type Subcategory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
}

// FileRecord mirrors the dispute_files table. Updates overwrite rather than
// append; at most one file per dispute.
type FileRecord struct {
	ID               string `json:"id"`
	DisputeID        string `json:"dispute_id"`
	FilePath         string `json:"file_path"`
	PublicFolderLink string `json:"public_folder_link"`
}

// Reply is an append-only comment on a dispute. Email and Group are a
// denormalized snapshot of the replier taken at write time so historical
// replies keep their attribution even if the user record later changes.
type Reply struct {
	ID        string    `json:"id"`
	DisputeID string    `json:"dispute_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Group     string    `json:"group"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisputeView is the user-facing read model: the dispute assembled with its
// category names, attachment and reply thread.
type DisputeView struct {
	Dispute
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory"`
	Replies     []Reply `json:"replies"`
}

// StatusCount is one row of the per-status aggregation.
type StatusCount struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}

// CategoryCount is one row of the per-category aggregation.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// TrendPoint counts disputes created on a single day.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Analytics is recomputed per request; nothing is cached.
type Analytics struct {
	StatusCounts   []StatusCount   `json:"statusCounts"`
	CategoryCounts []CategoryCount `json:"categoryCounts"`
	Trends         []TrendPoint    `json:"trends"`
}
