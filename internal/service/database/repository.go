package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/domain"
)

type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSessionRepository(postgres *PostgresService, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{db: postgres.GetDB(), logger: logger}
}

// Insert stores a completed reading as one JSONB row.
func (r *SessionRepository) Insert(ctx context.Context, session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	query := `
		INSERT INTO readings (id, username, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.User.Username, payload, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewUserRepository(postgres *PostgresService, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: postgres.GetDB(), logger: logger}
}

func (r *UserRepository) Upsert(ctx context.Context, user domain.UserRef) error {
	query := `
		INSERT INTO users (username, user_id, first_name, last_name, birth_date, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), now())
		ON CONFLICT (username) DO UPDATE SET
			user_id = COALESCE(EXCLUDED.user_id, users.user_id),
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			birth_date = COALESCE(EXCLUDED.birth_date, users.birth_date),
			updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, user.Username, user.ID, user.FirstName, user.LastName, user.BirthDate); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

type DecoderStateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewDecoderStateRepository(postgres *PostgresService, logger *zap.Logger) *DecoderStateRepository {
	return &DecoderStateRepository{db: postgres.GetDB(), logger: logger}
}

// Latest returns the newest decoder state of a user, or nil when the user
// has none.
func (r *DecoderStateRepository) Latest(ctx context.Context, user domain.UserRef) (*domain.DecoderState, error) {
	query := `
		SELECT options, created_at
		FROM model_decoder_states
		WHERE username = $1 AND first_name = $2 AND last_name = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	state := domain.DecoderState{
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
	var optionsJSON []byte

	err := r.db.QueryRowContext(ctx, query, user.Username, user.FirstName, user.LastName).Scan(&optionsJSON, &state.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query decoder state: %w", err)
	}

	// Rows written before a key existed keep that key's default.
	state.Options = domain.DefaultDecodeOptions()
	if err := json.Unmarshal(optionsJSON, &state.Options); err != nil {
		r.logger.Warn("Corrupt decoder state ignored",
			zap.String("username", user.Username),
			zap.Error(err),
		)
		return nil, nil
	}
	return &state, nil
}

func (r *DecoderStateRepository) Insert(ctx context.Context, state domain.DecoderState) error {
	options, err := json.Marshal(state.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal decoder state: %w", err)
	}

	query := `
		INSERT INTO model_decoder_states (username, first_name, last_name, options, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, state.Username, state.FirstName, state.LastName, options, state.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert decoder state: %w", err)
	}
	return nil
}
