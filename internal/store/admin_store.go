package store

import (
	"context"
	"fmt"
)

// IsAdmin reports whether userID is in the admins relation.
func (s *SQLiteStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	var exists bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM admins WHERE user_id = ?)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking admin: %w", err)
	}
	return exists, nil
}

// AddAdmin grants admin rights. It returns false when userID already is an admin.
func (s *SQLiteStore) AddAdmin(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO admins (user_id, added_at) VALUES (?, ?)`, userID, toMillis(s.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("inserting admin: %w", err)
	}
	return true, nil
}

// RemoveAdmin revokes admin rights and reports whether a row existed.
func (s *SQLiteStore) RemoveAdmin(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("deleting admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT user_id FROM admins ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying admins: %w", err)
	}
	defer rows.Close()

	admins := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning admin: %w", err)
		}
		admins = append(admins, id)
	}
	return admins, rows.Err()
}
