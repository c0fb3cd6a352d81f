package invite

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/riffle/internal/domain"
	"github.com/victornm/riffle/internal/errors"
	"github.com/victornm/riffle/internal/postgres"
)

const (
	codeLength     = 8
	maxInsertTries = 3

	// No 0/O, 1/I/L to keep codes readable when shared by hand.
	alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

type CreateCodeRequest struct {
	CreatedBy string
}

// CreateCode issues a new single-use invite code.
func (s *Service) CreateCode(ctx context.Context, req CreateCodeRequest) (*domain.InviteCode, error) {
	const stmt = `INSERT INTO invite_codes (code, created_by) VALUES ($1, $2) RETURNING create_time;`

	for try := 1; ; try++ {
		code, err := NewCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}

		ic := &domain.InviteCode{Code: code, CreatedBy: req.CreatedBy}
		err = s.db.QueryRow(ctx, stmt, ic.Code, ic.CreatedBy).Scan(&ic.CreateTime)
		if postgres.IsUniqueViolation(err) && try < maxInsertTries {
			slog.WarnContext(ctx, "invite: code collision, retrying", "try", try)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert invite code: %w", err)
		}

		return ic, nil
	}
}

type RedeemRequest struct {
	Code   string
	UserID string
}

// Redeem marks the code as used by the user. A code can be redeemed once; when two
// users race for the same code, exactly one update matches.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*domain.InviteCode, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, errors.InvalidArgument("invite code is required")
	}

	const stmt = `
UPDATE invite_codes SET used_by = $2, used_at = NOW()
WHERE code = $1 AND used_by IS NULL
RETURNING created_by, used_by, used_at, create_time;`

	ic := &domain.InviteCode{Code: code}
	err := s.db.QueryRow(ctx, stmt, code, req.UserID).Scan(&ic.CreatedBy, &ic.UsedBy, &ic.UsedAt, &ic.CreateTime)
	if err == nil {
		slog.InfoContext(ctx, "invite: code redeemed", "user_id", req.UserID)
		return ic, nil
	}

	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("redeem invite code: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invite_codes WHERE code = $1);`, code).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check invite code: %w", err)
	}

	if !exists {
		return nil, errors.NotFound("invite code not found: code=%s", code)
	}

	return nil, errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("invite code already used: code=%s", code))
}

// NewCode returns a random code drawn from an alphabet without look-alike characters.
func NewCode() (string, error) {
	var sb strings.Builder
	sb.Grow(codeLength)

	size := big.NewInt(int64(len(alphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		sb.WriteByte(alphabet[n.Int64()])
	}

	return sb.String(), nil
}

// NormalizeCode upper-cases the code and drops separators users tend to type.
func NormalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(code)))
}
