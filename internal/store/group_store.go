package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Priya8975/keyword-alerts/internal/domain"
)

const groupColumns = `id, group_id, group_name, invite_link, created_at, updated_at`

// AddGroup registers a destination group. Name and invite link may be empty.
// It returns ErrDuplicate when the group id is already known.
func (s *SQLiteStore) AddGroup(ctx context.Context, groupID, name, inviteLink string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	now := toMillis(s.now())
	res, err := db.ExecContext(ctx, `
		INSERT INTO groups (group_id, group_name, invite_link, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, groupID, name, inviteLink, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("group %s: %w", groupID, ErrDuplicate)
		}
		return 0, fmt.Errorf("inserting group: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading group id: %w", err)
	}
	return id, nil
}

// GetGroup returns the group, or nil when it is unknown.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	g, err := scanGroup(db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM groups WHERE group_id = ?`, groupID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying group: %w", err)
	}
	return g, nil
}

// UpdateGroup overwrites the group's name and invite link. It reports whether
// the group existed.
func (s *SQLiteStore) UpdateGroup(ctx context.Context, groupID, name, inviteLink string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE groups SET group_name = ?, invite_link = ?, updated_at = ?
		WHERE group_id = ?
	`, name, inviteLink, toMillis(s.now()), groupID)
	if err != nil {
		return false, fmt.Errorf("updating group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// SetGroupInviteLink stores a new invite link for the group without touching
// its name, and copies the link to any subscriber bound to the group. Unless
// replace is set, a group that already has a link is left alone. It reports
// whether the link was written.
func (s *SQLiteStore) SetGroupInviteLink(ctx context.Context, groupID, inviteLink string, replace bool) (bool, error) {
	if inviteLink == "" {
		return false, ErrInvalidBinding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE groups SET invite_link = ?, updated_at = ? WHERE group_id = ?`
	if !replace {
		query += ` AND invite_link = ''`
	}
	now := toMillis(s.now())
	res, err := tx.ExecContext(ctx, query, inviteLink, now, groupID)
	if err != nil {
		return false, fmt.Errorf("updating group invite: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE subscribers SET invite_link = ?, updated_at = ?
		WHERE group_id = ?
	`, inviteLink, now, groupID); err != nil {
		return false, fmt.Errorf("updating bound subscriber invite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

// ListGroups returns every group in insertion order.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return queryGroups(ctx, db, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
}

// ListIncompleteGroups returns groups missing a name or an invite link, in
// insertion order.
func (s *SQLiteStore) ListIncompleteGroups(ctx context.Context) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return queryGroups(ctx, db, `
		SELECT `+groupColumns+` FROM groups
		WHERE group_name = '' OR invite_link = ''
		ORDER BY id
	`)
}

// ListOrphanedGroups returns complete groups that no subscriber is bound to.
// These come from a reconciliation step whose binding write failed after the
// group was completed; they are not repaired automatically.
func (s *SQLiteStore) ListOrphanedGroups(ctx context.Context) ([]domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return queryGroups(ctx, db, `
		SELECT `+groupColumns+` FROM groups g
		WHERE g.group_name != '' AND g.invite_link != ''
		AND NOT EXISTS (SELECT 1 FROM subscribers s WHERE s.group_id = g.group_id)
		ORDER BY g.id
	`)
}

func queryGroups(ctx context.Context, q querier, query string, args ...any) ([]domain.Group, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	groups := []domain.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating groups: %w", err)
	}
	return groups, nil
}

func scanGroup(row rowScanner) (*domain.Group, error) {
	var g domain.Group
	var createdAt, updatedAt int64
	if err := row.Scan(&g.ID, &g.GroupID, &g.Name, &g.InviteLink, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	g.CreatedAt = fromMillis(createdAt)
	g.UpdatedAt = fromMillis(updatedAt)
	return &g, nil
}
