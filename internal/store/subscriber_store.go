package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Priya8975/keyword-alerts/internal/domain"
)

const subscriberColumns = `id, address, name, email, intention, group_id, group_name, invite_link, created_at, updated_at`

// AddSubscriber inserts a subscriber and its keyword set in one transaction.
// It returns ErrDuplicate when the address is already registered. Repeated
// keywords are collapsed by the (subscriber_id, keyword) constraint.
func (s *SQLiteStore) AddSubscriber(ctx context.Context, req domain.NewSubscriber) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	now := toMillis(s.now())

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO subscribers (address, name, email, intention, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.Address, req.Name, req.Email, req.Intention, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("subscriber %s: %w", req.Address, ErrDuplicate)
		}
		return 0, fmt.Errorf("inserting subscriber: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading subscriber id: %w", err)
	}

	if err := insertKeywords(ctx, tx, id, domain.ParseKeywords(req.Keywords), now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

// GetSubscriberByAddress returns the subscriber with its keywords, or nil when
// the address is unknown.
func (s *SQLiteStore) GetSubscriberByAddress(ctx context.Context, address string) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	sub, err := scanSubscriber(db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE address = ?`, address,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber: %w", err)
	}

	sub.Keywords, err = subscriberKeywords(ctx, db, sub.ID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// RemoveSubscriber deletes a subscriber; keywords cascade. It reports whether
// a row existed.
func (s *SQLiteStore) RemoveSubscriber(ctx context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM subscribers WHERE address = ?`, address)
	if err != nil {
		return false, fmt.Errorf("deleting subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// ListSubscribers returns all subscribers, newest first.
func (s *SQLiteStore) ListSubscribers(ctx context.Context, includeKeywords bool) ([]domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	subscribers, err := querySubscribers(ctx, db,
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}

	if includeKeywords && len(subscribers) > 0 {
		byID, err := allKeywords(ctx, db)
		if err != nil {
			return nil, err
		}
		for i := range subscribers {
			subscribers[i].Keywords = byID[subscribers[i].ID]
		}
	}
	return subscribers, nil
}

// BindSubscriberGroup sets the three group fields together. It reports whether
// the subscriber existed.
func (s *SQLiteStore) BindSubscriberGroup(ctx context.Context, address, groupID, groupName, inviteLink string) (bool, error) {
	if groupID == "" || groupName == "" || inviteLink == "" {
		return false, ErrInvalidBinding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE subscribers
		SET group_id = ?, group_name = ?, invite_link = ?, updated_at = ?
		WHERE address = ?
	`, groupID, groupName, inviteLink, toMillis(s.now()), address)
	if err != nil {
		return false, fmt.Errorf("binding subscriber group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// NextUnassignedSubscriber returns the oldest subscriber without a group, or
// nil when everyone is assigned.
func (s *SQLiteStore) NextUnassignedSubscriber(ctx context.Context) (*domain.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	sub, err := scanSubscriber(db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+` FROM subscribers
		WHERE group_id = ''
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying unassigned subscriber: %w", err)
	}

	sub.Keywords, err = subscriberKeywords(ctx, db, sub.ID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ReplaceKeywords swaps a subscriber's keyword set for the one parsed from
// keywordsText. It reports whether the subscriber existed.
func (s *SQLiteStore) ReplaceKeywords(ctx context.Context, address, keywordsText string) (bool, error) {
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

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM subscribers WHERE address = ?`, address).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("querying subscriber: %w", err)
	}

	now := toMillis(s.now())
	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords WHERE subscriber_id = ?`, id); err != nil {
		return false, fmt.Errorf("clearing keywords: %w", err)
	}
	if err := insertKeywords(ctx, tx, id, domain.ParseKeywords(keywordsText), now); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE subscribers SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return false, fmt.Errorf("touching subscriber: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func insertKeywords(ctx context.Context, q querier, subscriberID int64, keywords []string, now int64) error {
	for _, kw := range keywords {
		_, err := q.ExecContext(ctx, `
			INSERT INTO keywords (subscriber_id, keyword, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (subscriber_id, keyword) DO NOTHING
		`, subscriberID, kw, now)
		if err != nil {
			return fmt.Errorf("inserting keyword %q: %w", kw, err)
		}
	}
	return nil
}

func subscriberKeywords(ctx context.Context, q querier, subscriberID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT keyword FROM keywords WHERE subscriber_id = ? ORDER BY id`, subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	defer rows.Close()

	keywords := []string{}
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("scanning keyword: %w", err)
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

func allKeywords(ctx context.Context, q querier) (map[int64][]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT subscriber_id, keyword FROM keywords ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var kw string
		if err := rows.Scan(&id, &kw); err != nil {
			return nil, fmt.Errorf("scanning keyword: %w", err)
		}
		byID[id] = append(byID[id], kw)
	}
	return byID, rows.Err()
}

// querySubscribers drains rows fully before returning: with a single pooled
// connection no other query can run while rows are open.
func querySubscribers(ctx context.Context, q querier, query string, args ...any) ([]domain.Subscriber, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []domain.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		subscribers = append(subscribers, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscribers: %w", err)
	}
	return subscribers, nil
}

func scanSubscriber(row rowScanner) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	var createdAt, updatedAt int64
	err := row.Scan(
		&sub.ID, &sub.Address, &sub.Name, &sub.Email, &sub.Intention,
		&sub.GroupID, &sub.GroupName, &sub.InviteLink, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.CreatedAt = fromMillis(createdAt)
	sub.UpdatedAt = fromMillis(updatedAt)
	return &sub, nil
}
