package submission

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/riffle/internal/domain"
	"github.com/victornm/riffle/internal/errors"
	"github.com/victornm/riffle/internal/event"
	"github.com/victornm/riffle/internal/postgres"
)

const maxContentLength = 20000

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		eb: c.EventBus,
		db: c.DB,
	}
}

type SubmitRequest struct {
	WeekID   string
	AuthorID string
	Content  string
}

// Submit stores a new version of the author's summary for a week.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Submission, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errors.InvalidArgument("submission content is required")
	}
	if len(content) > maxContentLength {
		return nil, errors.InvalidArgument("submission content exceeds %d bytes", maxContentLength)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate submission ID: %w", err)
	}

	sub := &domain.Submission{
		ID:       id.String(),
		WeekID:   req.WeekID,
		AuthorID: req.AuthorID,
		Content:  content,
	}

	seasonID, err := s.insertSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventSubmissionCreated{
		SeasonID:   seasonID,
		Submission: *sub,
	})

	return sub, nil
}

// insertSubmission stores sub with the next version number and returns the season of its week.
// Only members of the week's season may submit.
func (s *Service) insertSubmission(ctx context.Context, sub *domain.Submission) (string, error) {
	const stmt = `
WITH target AS (
	SELECT w.id, w.season_id
	FROM weeks w
	JOIN season_members m ON m.season_id = w.season_id AND m.user_id = $3
	WHERE w.id = $2
), inserted AS (
	INSERT INTO submissions (id, week_id, author_id, version, content)
	SELECT $1, target.id, $3,
		COALESCE((SELECT MAX(version) FROM submissions WHERE week_id = $2 AND author_id = $3), 0) + 1,
		$4
	FROM target
	RETURNING version, create_time
)
SELECT inserted.version, inserted.create_time, target.season_id::text
FROM inserted, target;`

	var (
		seasonID   string
		createTime time.Time
	)
	err := s.db.QueryRow(ctx, stmt, sub.ID, sub.WeekID, sub.AuthorID, sub.Content).Scan(&sub.Version, &createTime, &seasonID)

	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", errors.New(errors.CodeNotFound,
			errors.WithMessagef("week not found or author is not a member of its season: week=%s author=%s", sub.WeekID, sub.AuthorID))
	}

	if postgres.IsUniqueViolation(err) {
		return "", errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("submission was saved concurrently, retry: week=%s author=%s", sub.WeekID, sub.AuthorID),
			errors.WithCause(err))
	}

	if err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}

	sub.CreateTime = createTime
	return seasonID, nil
}

type ListWeekSubmissionsRequest struct {
	WeekID string
	// ViewerID must be a member of the week's season. Empty skips the check.
	ViewerID string
}

// ListWeekSubmissions returns the latest version of every author's summary for a week.
func (s *Service) ListWeekSubmissions(ctx context.Context, req ListWeekSubmissionsRequest) ([]domain.Submission, error) {
	if req.ViewerID != "" {
		if err := s.requireMember(ctx, req.WeekID, req.ViewerID); err != nil {
			return nil, err
		}
	}

	const stmt = `
SELECT DISTINCT ON (author_id) id::text, week_id::text, author_id, version, content, create_time
FROM submissions
WHERE week_id = $1
ORDER BY author_id, version DESC;`

	rows, err := s.db.Query(ctx, stmt, req.WeekID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	subs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Submission, error) {
		var sub domain.Submission
		err := r.Scan(&sub.ID, &sub.WeekID, &sub.AuthorID, &sub.Version, &sub.Content, &sub.CreateTime)
		return sub, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}

	return subs, nil
}

func (s *Service) requireMember(ctx context.Context, weekID, userID string) error {
	const stmt = `
SELECT EXISTS (
	SELECT 1
	FROM weeks w
	JOIN season_members m ON m.season_id = w.season_id
	WHERE w.id = $1 AND m.user_id = $2
);`

	var ok bool
	if err := s.db.QueryRow(ctx, stmt, weekID, userID).Scan(&ok); err != nil {
		return fmt.Errorf("check membership: %w", err)
	}

	if !ok {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("not a member of the week's season: week=%s user=%s", weekID, userID))
	}

	return nil
}

type ListSeasonRecordsRequest struct {
	SeasonID string
}

// ListSeasonRecords returns one record per (author, week) that has at least one submission
// in the season.
func (s *Service) ListSeasonRecords(ctx context.Context, req ListSeasonRecordsRequest) ([]domain.SubmissionRecord, error) {
	const stmt = `
SELECT DISTINCT s.author_id, s.week_id::text
FROM submissions s
JOIN weeks w ON w.id = s.week_id
WHERE w.season_id = $1;`

	rows, err := s.db.Query(ctx, stmt, req.SeasonID)
	if err != nil {
		return nil, fmt.Errorf("list submission records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.SubmissionRecord, error) {
		var rec domain.SubmissionRecord
		err := r.Scan(&rec.AuthorID, &rec.WeekID)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan submission records: %w", err)
	}

	return records, nil
}
