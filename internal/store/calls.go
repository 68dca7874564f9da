package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Call struct {
	ID           uuid.UUID      `db:"id"`
	ConnectionID string         `db:"connection_id"`
	CallerID     string         `db:"caller_id"`
	Status       string         `db:"status"`
	EndReason    sql.NullString `db:"end_reason"`
	Summary      sql.NullString `db:"summary"`
	StartedAt    string         `db:"started_at"`
	EndedAt      sql.NullString `db:"ended_at"`
}

type CallTurn struct {
	ID      uuid.UUID `db:"id"`
	CallID  uuid.UUID `db:"call_id"`
	Role    string    `db:"role"`
	Content string    `db:"content"`
	SaidAt  string    `db:"said_at"`
}

const CallStatusActive = "active"
const CallStatusCompleted = "completed"

const TurnRoleCaller = "caller"
const TurnRoleAgent = "agent"

const sqlCreateCall = `
INSERT INTO calls (connection_id, caller_id, status)
VALUES ($1, $2, $3)
RETURNING id, connection_id, caller_id, status, end_reason, summary, started_at, ended_at`

func (s *Store) CreateCall(ctx context.Context, connectionID, callerID string) (*Call, error) {
	var call Call
	err := s.db.GetContext(ctx, &call, sqlCreateCall, connectionID, callerID, CallStatusActive)
	if err != nil {
		s.logger.Error(ctx, "failed to create call", err)
		return nil, fmt.Errorf("failed to create call: %w", err)
	}
	return &call, nil
}

const sqlGetCallByID = `
SELECT * FROM calls WHERE id = $1`

func (s *Store) GetCall(ctx context.Context, id uuid.UUID) (*Call, error) {
	var call Call
	err := s.db.GetContext(ctx, &call, sqlGetCallByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get call by ID", err)
		return nil, fmt.Errorf("failed to get call by ID: %w", err)
	}
	return &call, nil
}

const sqlAddCallTurn = `
INSERT INTO call_turns (call_id, role, content)
VALUES ($1, $2, $3)
RETURNING id, call_id, role, content, said_at`

func (s *Store) AddCallTurn(ctx context.Context, callID uuid.UUID, role, content string) (*CallTurn, error) {
	var turn CallTurn
	err := s.db.GetContext(ctx, &turn, sqlAddCallTurn, callID, role, content)
	if err != nil {
		s.logger.Error(ctx, "failed to add call turn", err)
		return nil, fmt.Errorf("failed to add call turn: %w", err)
	}
	return &turn, nil
}

const sqlGetCallTurns = `
SELECT * FROM call_turns WHERE call_id = $1 ORDER BY said_at ASC`

func (s *Store) GetCallTurns(ctx context.Context, callID uuid.UUID) ([]CallTurn, error) {
	var turns []CallTurn
	err := s.db.SelectContext(ctx, &turns, sqlGetCallTurns, callID)
	if err != nil {
		s.logger.Error(ctx, "failed to get call turns", err)
		return nil, fmt.Errorf("failed to get call turns: %w", err)
	}
	return turns, nil
}

const sqlCompleteCall = `
UPDATE calls SET status = $1, end_reason = $2, ended_at = NOW() WHERE id = $3`

func (s *Store) CompleteCall(ctx context.Context, callID uuid.UUID, endReason string) error {
	result, err := s.db.ExecContext(ctx, sqlCompleteCall, CallStatusCompleted, endReason, callID)
	if err != nil {
		s.logger.Error(ctx, "failed to complete call", err)
		return fmt.Errorf("failed to complete call: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlSetCallSummary = `
UPDATE calls SET summary = $1 WHERE id = $2`

func (s *Store) SetCallSummary(ctx context.Context, callID uuid.UUID, summary string) error {
	result, err := s.db.ExecContext(ctx, sqlSetCallSummary, summary, callID)
	if err != nil {
		s.logger.Error(ctx, "failed to set call summary", err)
		return fmt.Errorf("failed to set call summary: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
