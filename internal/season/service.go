package season

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/riffle/internal/calendar"
	"github.com/victornm/riffle/internal/domain"
	"github.com/victornm/riffle/internal/errors"
	"github.com/victornm/riffle/internal/event"
	"github.com/victornm/riffle/internal/postgres"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

type Service struct {
	db *pgxpool.Pool
	eb *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
		eb: c.EventBus,
	}
}

// CreateSeasonRequest represents a request to create a new season.
type CreateSeasonRequest struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

func (r CreateSeasonRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.InvalidArgument("season name is required")
	}

	if calendar.Date(r.StartDate).After(calendar.Date(r.EndDate)) {
		return errors.InvalidArgument("season start date %s is after end date %s",
			r.StartDate.Format(domain.DateLayout), r.EndDate.Format(domain.DateLayout))
	}

	return nil
}

// CreateSeason creates an inactive season together with its weeks.
func (s *Service) CreateSeason(ctx context.Context, req CreateSeasonRequest) (*domain.Season, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate season ID: %w", err)
	}

	ss := &domain.Season{
		ID:        id.String(),
		Name:      strings.TrimSpace(req.Name),
		StartDate: calendar.Date(req.StartDate),
		EndDate:   calendar.Date(req.EndDate),
	}
	ss.Weeks = calendar.GenerateWeeks(ss.StartDate, ss.EndDate, ss.ID)

	// TODO: reject seasons without weeks once product confirms short seasons are not wanted.
	if len(ss.Weeks) == 0 {
		slog.WarnContext(ctx, "season: no Monday in range, season has no weeks",
			"season_id", ss.ID,
			"start_date", ss.StartDate.Format(domain.DateLayout),
			"end_date", ss.EndDate.Format(domain.DateLayout),
		)
	}

	if err := s.insertSeason(ctx, ss); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "season: created", "season_id", ss.ID, "weeks", len(ss.Weeks))

	s.eb.Publish(ctx, domain.EventSeasonCreated{
		Season: *ss,
	})

	return ss, nil
}

func (s *Service) insertSeason(ctx context.Context, ss *domain.Season) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insSeasonStmt = `INSERT INTO seasons (id, name, start_date, end_date, is_active) VALUES ($1, $2, $3, $4, FALSE);`
		insWeekStmt   = `INSERT INTO weeks (id, season_id, week_number, title, start_date, end_date, is_current) VALUES ($1, $2, $3, $4, $5, $6, $7);`
	)

	if _, err = tx.Exec(ctx, insSeasonStmt, ss.ID, ss.Name, ss.StartDate, ss.EndDate); err != nil {
		return fmt.Errorf("insert season: %w", err)
	}

	b := &pgx.Batch{}
	for _, w := range ss.Weeks {
		b.Queue(insWeekStmt, w.ID, w.SeasonID, w.WeekNumber, w.Title, w.StartDate, w.EndDate, w.IsCurrent)
	}
	if err = tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert weeks: %w", err)
	}

	return tx.Commit(ctx)
}

type ActivateSeasonRequest struct {
	SeasonID string
}

// ActivateSeason makes the season the only active one.
func (s *Service) ActivateSeason(ctx context.Context, req ActivateSeasonRequest) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		deactivateStmt = `UPDATE seasons SET is_active = FALSE WHERE is_active AND id <> $1;`
		activateStmt   = `UPDATE seasons SET is_active = TRUE WHERE id = $1;`
	)

	if _, err = tx.Exec(ctx, deactivateStmt, req.SeasonID); err != nil {
		return fmt.Errorf("deactivate seasons: %w", err)
	}

	tag, err := tx.Exec(ctx, activateStmt, req.SeasonID)
	if postgres.IsUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("another season was activated concurrently: season=%s", req.SeasonID),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return fmt.Errorf("activate season: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("season not found: season=%s", req.SeasonID)
	}

	return tx.Commit(ctx)
}

type SetCurrentWeekRequest struct {
	SeasonID string
	WeekID   string
}

// SetCurrentWeek flags a week of the season as current and clears the flag on the others.
func (s *Service) SetCurrentWeek(ctx context.Context, req SetCurrentWeekRequest) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		clearStmt = `UPDATE weeks SET is_current = FALSE WHERE season_id = $1 AND is_current;`
		setStmt   = `UPDATE weeks SET is_current = TRUE WHERE season_id = $1 AND id = $2;`
	)

	if _, err = tx.Exec(ctx, clearStmt, req.SeasonID); err != nil {
		return fmt.Errorf("clear current week: %w", err)
	}

	tag, err := tx.Exec(ctx, setStmt, req.SeasonID, req.WeekID)
	if err != nil {
		return fmt.Errorf("set current week: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("week not found in season: season=%s week=%s", req.SeasonID, req.WeekID)
	}

	return tx.Commit(ctx)
}

type GetSeasonRequest struct {
	SeasonID string
}

// GetSeason returns a season with its weeks.
func (s *Service) GetSeason(ctx context.Context, req GetSeasonRequest) (*domain.Season, error) {
	const stmt = `SELECT id::text, name, start_date, end_date, is_active FROM seasons WHERE id = $1;`

	return s.getSeason(ctx, stmt, req.SeasonID)
}

// GetActiveSeason returns the active season with its weeks.
func (s *Service) GetActiveSeason(ctx context.Context) (*domain.Season, error) {
	const stmt = `SELECT id::text, name, start_date, end_date, is_active FROM seasons WHERE is_active;`

	return s.getSeason(ctx, stmt)
}

func (s *Service) getSeason(ctx context.Context, stmt string, args ...any) (*domain.Season, error) {
	var ss domain.Season
	err := s.db.QueryRow(ctx, stmt, args...).Scan(&ss.ID, &ss.Name, &ss.StartDate, &ss.EndDate, &ss.IsActive)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("season not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get season: %w", err)
	}

	ss.Weeks, err = s.ListWeeks(ctx, ListWeeksRequest{SeasonID: ss.ID})
	if err != nil {
		return nil, err
	}

	return &ss, nil
}

type ListWeeksRequest struct {
	SeasonID string
}

// ListWeeks returns the weeks of a season ordered by week number.
func (s *Service) ListWeeks(ctx context.Context, req ListWeeksRequest) ([]domain.Week, error) {
	const stmt = `
SELECT id::text, season_id::text, week_number, title, start_date, end_date, is_current
FROM weeks
WHERE season_id = $1
ORDER BY week_number;`

	rows, err := s.db.Query(ctx, stmt, req.SeasonID)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}

	weeks, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Week, error) {
		var w domain.Week
		err := r.Scan(&w.ID, &w.SeasonID, &w.WeekNumber, &w.Title, &w.StartDate, &w.EndDate, &w.IsCurrent)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan weeks: %w", err)
	}

	return weeks, nil
}

type ListMembersRequest struct {
	SeasonID string
}

func (s *Service) ListMembers(ctx context.Context, req ListMembersRequest) ([]domain.Membership, error) {
	const stmt = `SELECT season_id::text, user_id, nickname FROM season_members WHERE season_id = $1 ORDER BY create_time;`

	rows, err := s.db.Query(ctx, stmt, req.SeasonID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	members, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Membership, error) {
		var m domain.Membership
		err := r.Scan(&m.SeasonID, &m.UserID, &m.Nickname)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan members: %w", err)
	}

	return members, nil
}

type JoinSeasonRequest struct {
	SeasonID string
	UserID   string
	Nickname string
}

// JoinSeason enrols a user in a season under a nickname. Only users who have redeemed
// an invite code may join.
func (s *Service) JoinSeason(ctx context.Context, req JoinSeasonRequest) (*domain.Membership, error) {
	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		return nil, errors.InvalidArgument("nickname is required")
	}

	const stmt = `
INSERT INTO season_members (season_id, user_id, nickname)
SELECT $1, $2, $3
WHERE EXISTS (SELECT 1 FROM invite_codes WHERE used_by = $2);`

	tag, err := s.db.Exec(ctx, stmt, req.SeasonID, req.UserID, nickname)
	switch {
	case postgres.IsUniqueViolation(err):
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already a member: season=%s user=%s", req.SeasonID, req.UserID),
			errors.WithCause(err),
		)
	case postgres.IsForeignKeyViolation(err):
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("season not found: season=%s", req.SeasonID),
			errors.WithCause(err),
		)
	case err != nil:
		return nil, fmt.Errorf("insert membership: %w", err)
	case tag.RowsAffected() == 0:
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("redeem an invite code before joining: user=%s", req.UserID),
		)
	}

	return &domain.Membership{
		SeasonID: req.SeasonID,
		UserID:   req.UserID,
		Nickname: nickname,
	}, nil
}
