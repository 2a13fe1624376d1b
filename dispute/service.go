package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"disputeflow/auth"
)

var (
	// ErrForbidden signals that the requester does not own the dispute and
	// holds no role that overrides ownership.
	ErrForbidden = errors.New("dispute: forbidden")
	// ErrValidation signals missing or malformed input.
	ErrValidation = errors.New("dispute: validation error")
)

// Uploader persists an attachment and returns a durable URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, content []byte) (string, error)
}

// Mailer sends dispute lifecycle notifications. Failures are secondary
// warnings; the primary transaction has already committed.
type Mailer interface {
	DisputeCreated(ctx context.Context, email, trackingID string) error
	ReplyPosted(ctx context.Context, recipients []string, trackingID, reply, replierEmail string) error
}

// RecipientSource lists the emails the reply broadcast goes to.
type RecipientSource interface {
	ListEmails(ctx context.Context) ([]string, error)
}

// Service implements the dispute lifecycle: creation, updates, reply
// threading, status transitions and the auto-resolution sweep.
type Service struct {
	repo       Repository
	files      Uploader
	mailer     Mailer
	recipients RecipientSource
	logger     *zap.Logger

	trackingGen func() (string, error)
	now         func() time.Time

	externalGroup    string
	counterpartGroup string
	staleThreshold   time.Duration
}

// ServiceOptions configures the sweep tags and threshold.
type ServiceOptions struct {
	ExternalGroup    string
	CounterpartGroup string
	StaleThreshold   time.Duration
}

// NewService wires the lifecycle service. files, mailer and recipients may be
// nil; the corresponding side effects are skipped.
func NewService(repo Repository, files Uploader, mailer Mailer, recipients RecipientSource, logger *zap.Logger, opts ServiceOptions) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ExternalGroup == "" {
		opts.ExternalGroup = "ringo"
	}
	if opts.CounterpartGroup == "" {
		opts.CounterpartGroup = "sterling"
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 24 * time.Hour
	}
	return &Service{
		repo:             repo,
		files:            files,
		mailer:           mailer,
		recipients:       recipients,
		logger:           logger,
		trackingGen:      NewTrackingID,
		now:              time.Now,
		externalGroup:    opts.ExternalGroup,
		counterpartGroup: opts.CounterpartGroup,
		staleThreshold:   opts.StaleThreshold,
	}
}

// WithClock overrides the sweep clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTrackingGenerator overrides tracking id generation. Test hook.
func (s *Service) WithTrackingGenerator(gen func() (string, error)) *Service {
	s.trackingGen = gen
	return s
}

// CreateRequest carries dispute creation input. Attachment is optional.
type CreateRequest struct {
	Title           string
	CategoryName    string
	SubcategoryName string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	Attachment      *Attachment
}

// Attachment is an uploaded file body.
type Attachment struct {
	Filename string
	Content  []byte
}

// CreateResult reports the created dispute plus any secondary warning from
// the attachment or notification gateways.
type CreateResult struct {
	Dispute Dispute
	FileURL string
	Warning string
}

// Create opens a dispute owned by the requesting subject with initial status
// pending. Category and subcategory are matched by exact name and created
// when absent. Attachment and email failures do not fail the creation.
func (s *Service) Create(ctx context.Context, requester auth.Subject, req CreateRequest) (CreateResult, error) {
	if req.Title == "" || req.CategoryName == "" || req.SubcategoryName == "" || req.Description == "" {
		return CreateResult{}, fmt.Errorf("%w: title, category_name, sub_category_name and description are required", ErrValidation)
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return CreateResult{}, fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	}

	var created Dispute
	for attempt := 0; ; attempt++ {
		trackingID, err := s.trackingGen()
		if err != nil {
			return CreateResult{}, err
		}

		created, err = s.repo.CreateDispute(ctx, CreateDisputeParams{
			UserID:          requester.UserID,
			Title:           req.Title,
			CategoryName:    req.CategoryName,
			SubcategoryName: req.SubcategoryName,
			Description:     req.Description,
			StartTime:       req.StartTime,
			EndTime:         req.EndTime,
			TrackingID:      trackingID,
		})
		if err == nil {
			break
		}
		// 48 bits of randomness: one retry covers the near-zero collision case.
		if errors.Is(err, ErrTrackingConflict) && attempt == 0 {
			continue
		}
		return CreateResult{}, err
	}

	result := CreateResult{Dispute: created}

	if req.Attachment != nil && s.files != nil {
		url, err := s.files.Upload(ctx, req.Attachment.Filename, req.Attachment.Content)
		if err != nil {
			s.logger.Warn("attachment upload failed",
				zap.String("dispute_id", created.ID),
				zap.String("user_id", requester.UserID),
				zap.Error(err))
			result.Warning = "dispute created but the attachment could not be stored"
		} else if err := s.repo.SaveFile(ctx, created.ID, url, url); err != nil {
			s.logger.Warn("attachment record failed",
				zap.String("dispute_id", created.ID),
				zap.Error(err))
			result.Warning = "dispute created but the attachment could not be recorded"
		} else {
			result.FileURL = url
		}
	}

	if s.mailer != nil {
		if err := s.mailer.DisputeCreated(ctx, requester.Email, created.TrackingID); err != nil {
			s.logger.Warn("dispute creation email failed",
				zap.String("dispute_id", created.ID),
				zap.String("tracking_id", created.TrackingID),
				zap.Error(err))
			if result.Warning == "" {
				result.Warning = "dispute created but the notification email could not be sent"
			}
		}
	}

	s.logger.Info("dispute created",
		zap.String("dispute_id", created.ID),
		zap.String("tracking_id", created.TrackingID),
		zap.String("user_id", requester.UserID))

	return result, nil
}

// UpdateRequest carries a full dispute update; every field except Status and
// Attachment is required.
type UpdateRequest struct {
	ID            string
	Title         string
	CategoryID    string
	SubcategoryID string
	Description   string
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	Attachment    *Attachment
}

// Update rewrites a dispute. Only the current owner may update, regardless
// of role; a replacement attachment overwrites the existing file record.
func (s *Service) Update(ctx context.Context, requester auth.Subject, req UpdateRequest) error {
	if req.ID == "" || req.Title == "" || req.CategoryID == "" || req.SubcategoryID == "" ||
		req.Description == "" || req.StartTime.IsZero() || req.EndTime.IsZero() {
		return fmt.Errorf("%w: missing required fields", ErrValidation)
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	if !req.Status.valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}

	existing, err := s.repo.GetByID(ctx, req.ID, "")
	if err != nil {
		return err
	}
	if !auth.Allowed(auth.ActionUpdateDispute, requester, existing.UserID) {
		return ErrForbidden
	}

	if req.Attachment != nil && s.files != nil {
		url, err := s.files.Upload(ctx, req.Attachment.Filename, req.Attachment.Content)
		if err != nil {
			return fmt.Errorf("dispute: attachment upload: %w", err)
		}
		if err := s.repo.SaveFile(ctx, req.ID, url, url); err != nil {
			return err
		}
	}

	if err := s.repo.Update(ctx, UpdateDisputeParams{
		ID:            req.ID,
		Title:         req.Title,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		Description:   req.Description,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        req.Status,
	}); err != nil {
		return err
	}

	s.logger.Info("dispute updated",
		zap.String("dispute_id", req.ID),
		zap.String("user_id", requester.UserID))
	return nil
}

// Delete removes a dispute: super_admin removes any, everyone else only
// their own.
func (s *Service) Delete(ctx context.Context, requester auth.Subject, disputeID string) error {
	if disputeID == "" {
		return fmt.Errorf("%w: dispute id is required", ErrValidation)
	}

	scope := requester.UserID
	if requester.Role == auth.RoleSuperAdmin {
		scope = ""
	}

	if err := s.repo.Delete(ctx, disputeID, scope); err != nil {
		return err
	}

	s.logger.Info("dispute deleted",
		zap.String("dispute_id", disputeID),
		zap.String("user_id", requester.UserID))
	return nil
}

// Get fetches one dispute with category names and attachment (admin view,
// no replies). Reads are role-scoped: admins see all, others only their own.
func (s *Service) Get(ctx context.Context, requester auth.Subject, disputeID string) (DisputeView, error) {
	return s.repo.GetDetail(ctx, disputeID, s.readScope(requester), false)
}

// GetForView fetches one dispute with its reply thread (user view).
func (s *Service) GetForView(ctx context.Context, requester auth.Subject, disputeID string) (DisputeView, error) {
	return s.repo.GetDetail(ctx, disputeID, s.readScope(requester), true)
}

// List returns the disputes visible to the requester.
func (s *Service) List(ctx context.Context, requester auth.Subject) ([]Dispute, error) {
	return s.repo.List(ctx, s.readScope(requester))
}

// Catalog returns all categories and subcategories.
func (s *Service) Catalog(ctx context.Context) ([]Category, []Subcategory, error) {
	return s.repo.ListCatalog(ctx)
}

// ReplyResult reports the appended reply and any broadcast warning.
type ReplyResult struct {
	Reply    Reply
	Reopened bool
	Warning  string
}

// AddReply appends a reply to an existing dispute, reopening it when
// resolved, and broadcasts the comment to every registered email. The reply
// snapshot of email and group comes from the requester's token.
func (s *Service) AddReply(ctx context.Context, requester auth.Subject, disputeID, text string) (ReplyResult, error) {
	if disputeID == "" || text == "" {
		return ReplyResult{}, fmt.Errorf("%w: dispute_id and reply are required", ErrValidation)
	}

	outcome, err := s.repo.AddReply(ctx, AddReplyParams{
		DisputeID: disputeID,
		UserID:    requester.UserID,
		Email:     requester.Email,
		Group:     requester.Group,
		Text:      text,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReplyResult{}, fmt.Errorf("%w: dispute does not exist", ErrValidation)
		}
		return ReplyResult{}, err
	}

	result := ReplyResult{Reply: outcome.Reply, Reopened: outcome.Reopened}

	if s.mailer != nil && s.recipients != nil {
		recipients, err := s.recipients.ListEmails(ctx)
		if err == nil {
			err = s.mailer.ReplyPosted(ctx, recipients, outcome.TrackingID, text, requester.Email)
		}
		if err != nil {
			s.logger.Warn("reply broadcast failed",
				zap.String("dispute_id", disputeID),
				zap.Error(err))
			result.Warning = "reply added but the notification email could not be sent"
		}
	}

	s.logger.Info("reply added",
		zap.String("dispute_id", disputeID),
		zap.String("user_id", requester.UserID),
		zap.Bool("reopened", outcome.Reopened))

	return result, nil
}

// ResolveStale runs one auto-resolution pass: disputes whose last
// external-group reply is older than the threshold, with no counterpart
// reply after it, become resolved. Idempotent.
func (s *Service) ResolveStale(ctx context.Context) (int64, error) {
	now := s.now()
	resolved, err := s.repo.ResolveStale(ctx, ResolveStaleParams{
		ExternalGroup:    s.externalGroup,
		CounterpartGroup: s.counterpartGroup,
		Cutoff:           now.Add(-s.staleThreshold),
		Now:              now,
	})
	if err != nil {
		return 0, err
	}
	if resolved > 0 {
		s.logger.Info("stale disputes resolved", zap.Int64("count", resolved))
	}
	return resolved, nil
}

func (s *Service) readScope(requester auth.Subject) string {
	if auth.SeesAllDisputes(requester.Role) {
		return ""
	}
	return requester.UserID
}
