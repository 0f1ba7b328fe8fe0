package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"vidflow/internal/delivery"
)

const deadLetterColumns = "id, operation, record_id, input_json, error_message, attempts, created_at"

// PutDeadLetter stores a letter, satisfying delivery.Sink.
func (s *Store) PutDeadLetter(ctx context.Context, letter delivery.Letter) error {
	if letter.ID == "" {
		return errors.New("dead letter id is required")
	}
	input := string(letter.Input)
	if input == "" {
		input = "null"
	}
	_, err := s.exec(ctx,
		`INSERT OR REPLACE INTO dead_letters (`+deadLetterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		letter.ID,
		letter.Operation,
		nullableString(letter.RecordID),
		input,
		letter.Error,
		letter.Attempts,
		formatTime(letter.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns stored letters, oldest first. A non-positive limit
// returns all rows.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]delivery.Letter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []delivery.Letter
	for rows.Next() {
		letter, err := scanLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, *letter)
	}
	return letters, rows.Err()
}

// GetDeadLetter returns a letter by id, or nil when unknown.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (*delivery.Letter, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = ?`, id)
	letter, err := scanLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return letter, nil
}

// DeleteDeadLetter removes a letter. It reports whether a row was deleted.
func (s *Store) DeleteDeadLetter(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete dead letter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete dead letter rows: %w", err)
	}
	return n > 0, nil
}

// CountDeadLetters returns the number of stored letters.
func (s *Store) CountDeadLetters(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM dead_letters`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return count, nil
}

func scanLetter(scanner interface{ Scan(dest ...any) error }) (*delivery.Letter, error) {
	var (
		letter   delivery.Letter
		recordID sql.NullString
		input    string
		created  sql.NullString
	)
	if err := scanner.Scan(&letter.ID, &letter.Operation, &recordID, &input, &letter.Error, &letter.Attempts, &created); err != nil {
		return nil, err
	}
	letter.RecordID = recordID.String
	letter.Input = json.RawMessage(input)
	letter.CreatedAt = parseTime(created)
	return &letter, nil
}
