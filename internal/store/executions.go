package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidflow/internal/pipeline"
	"vidflow/internal/stage"
)

const executionColumns = "id, status, input_json, output_json, current_stage, error_message, started_at, deadline, finished_at"

// CreateExecution records a newly started execution. Re-recording an
// existing id overwrites its summary row.
func (s *Store) CreateExecution(ctx context.Context, exec pipeline.Execution) error {
	return s.upsertExecution(ctx, exec)
}

// FinishExecution records the terminal state of an execution.
func (s *Store) FinishExecution(ctx context.Context, exec pipeline.Execution) error {
	if !exec.Status.Terminal() {
		return fmt.Errorf("finish execution %s: status %s is not terminal", exec.ID, exec.Status)
	}
	return s.upsertExecution(ctx, exec)
}

func (s *Store) upsertExecution(ctx context.Context, exec pipeline.Execution) error {
	if strings.TrimSpace(exec.ID) == "" {
		return errors.New("execution id is required")
	}
	input := string(exec.Input)
	if input == "" {
		input = "null"
	}
	_, err := s.exec(ctx,
		`INSERT INTO executions (
            id, status, input_json, output_json, current_stage, error_message,
            started_at, deadline, finished_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            output_json = excluded.output_json,
            current_stage = excluded.current_stage,
            error_message = excluded.error_message,
            finished_at = excluded.finished_at,
            updated_at = excluded.updated_at`,
		exec.ID,
		string(exec.Status),
		input,
		nullablePayload(exec.Output),
		exec.CurrentStage,
		nullableString(exec.Error),
		formatTime(exec.StartedAt),
		formatTime(exec.Deadline),
		nullableTime(exec.FinishedAt),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert execution %s: %w", exec.ID, err)
	}
	return nil
}

// RecordStage stores one stage result and advances the execution's current stage.
func (s *Store) RecordStage(ctx context.Context, executionID string, result pipeline.StageResult) error {
	_, err := s.exec(ctx,
		`INSERT OR REPLACE INTO stage_results (
            execution_id, stage_index, name, output_json, error_message, abandoned, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		executionID,
		result.Index,
		result.Name,
		nullablePayload(result.Output),
		nullableString(result.Error),
		boolToInt(result.Abandoned),
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record stage %s for %s: %w", result.Name, executionID, err)
	}
	if _, err := s.exec(ctx,
		`UPDATE executions SET current_stage = ?, updated_at = ? WHERE id = ? AND current_stage < ?`,
		result.Index, formatTime(time.Now()), executionID, result.Index,
	); err != nil {
		return fmt.Errorf("advance execution %s: %w", executionID, err)
	}
	return nil
}

// GetExecution loads an execution with its stage results. It returns nil
// when the id is unknown.
func (s *Store) GetExecution(ctx context.Context, id string) (*pipeline.Execution, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage_index, name, output_json, error_message, abandoned, started_at, finished_at
         FROM stage_results WHERE execution_id = ? ORDER BY stage_index`, id)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			result    pipeline.StageResult
			output    sql.NullString
			errMsg    sql.NullString
			abandoned int
			started   sql.NullString
			finished  sql.NullString
		)
		if err := rows.Scan(&result.Index, &result.Name, &output, &errMsg, &abandoned, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		if output.Valid {
			result.Output = stage.Payload(output.String)
		}
		result.Error = errMsg.String
		result.Abandoned = abandoned != 0
		result.StartedAt = parseTime(started)
		result.FinishedAt = parseTime(finished)
		exec.Stages = append(exec.Stages, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage results: %w", err)
	}
	return exec, nil
}

// ListExecutions returns execution summaries (without stage results), newest
// first, optionally filtered by status. A non-positive limit returns all rows.
func (s *Store) ListExecutions(ctx context.Context, limit int, statuses ...pipeline.Status) ([]pipeline.Execution, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + executionColumns + ` FROM executions`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// ExecutionStats returns the number of archived executions per status.
func (s *Store) ExecutionStats(ctx context.Context) (map[pipeline.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM executions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("execution stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[pipeline.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[pipeline.Status(status)] = count
	}
	return stats, rows.Err()
}

// PruneExecutions deletes terminal executions that started before cutoff.
func (s *Store) PruneExecutions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM executions WHERE status != ? AND started_at < ?`,
		string(pipeline.StatusRunning), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	return res.RowsAffected()
}

// MarkAbandoned flags executions still RUNNING in the archive (left behind by
// a crash) as FAILED. It returns the number of rows changed.
func (s *Store) MarkAbandoned(ctx context.Context, reason string) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.exec(ctx,
		`UPDATE executions SET status = ?, error_message = ?, finished_at = ?, updated_at = ? WHERE status = ?`,
		string(pipeline.StatusFailed), reason, now, now, string(pipeline.StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned executions: %w", err)
	}
	return res.RowsAffected()
}

func scanExecution(scanner interface{ Scan(dest ...any) error }) (*pipeline.Execution, error) {
	var (
		exec     pipeline.Execution
		status   string
		input    string
		output   sql.NullString
		errMsg   sql.NullString
		started  sql.NullString
		deadline sql.NullString
		finished sql.NullString
	)
	if err := scanner.Scan(&exec.ID, &status, &input, &output, &exec.CurrentStage, &errMsg, &started, &deadline, &finished); err != nil {
		return nil, err
	}
	exec.Status = pipeline.Status(status)
	exec.Input = stage.Payload(input)
	if output.Valid {
		exec.Output = stage.Payload(output.String)
	}
	exec.Error = errMsg.String
	exec.StartedAt = parseTime(started)
	exec.Deadline = parseTime(deadline)
	exec.FinishedAt = parseTime(finished)
	return &exec, nil
}
