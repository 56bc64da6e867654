package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Priya8975/keyword-alerts/internal/domain"
)

// RecordProcessedPost inserts a ledger entry. It returns false, without error,
// when the post id is already present.
func (s *SQLiteStore) RecordProcessedPost(ctx context.Context, postID, text, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO processed_posts (post_id, post_text, post_link, processed_at)
		VALUES (?, ?, ?, ?)
	`, postID, text, link, toMillis(s.now()))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("recording processed post: %w", err)
	}
	return true, nil
}

// IsPostProcessed reports whether the ledger already holds postID.
func (s *SQLiteStore) IsPostProcessed(ctx context.Context, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return false, err
	}

	var exists bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_posts WHERE post_id = ?)`, postID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking processed post: %w", err)
	}
	return exists, nil
}

// ListProcessedPosts returns the most recent ledger entries.
func (s *SQLiteStore) ListProcessedPosts(ctx context.Context, limit int) ([]domain.ProcessedPost, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT post_id, post_text, post_link, processed_at
		FROM processed_posts
		ORDER BY processed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying processed posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.ProcessedPost{}
	for rows.Next() {
		var p domain.ProcessedPost
		var processedAt int64
		if err := rows.Scan(&p.PostID, &p.Text, &p.Link, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning processed post: %w", err)
		}
		p.ProcessedAt = fromMillis(processedAt)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// FindSubscribersByKeywordMatch returns the distinct subscribers that hold a
// keyword occurring anywhere in text and already have a group. Matching is
// plain substring containment on the lowercased text, so a short keyword
// such as "ai" also matches inside "rails". Result order is unspecified.
func (s *SQLiteStore) FindSubscribersByKeywordMatch(ctx context.Context, text string) ([]domain.Subscriber, error) {
	lowered := strings.ToLower(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT keyword FROM keywords`)
	if err != nil {
		return nil, fmt.Errorf("querying keywords: %w", err)
	}
	var matched []any
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning keyword: %w", err)
		}
		if kw != "" && strings.Contains(lowered, kw) {
			matched = append(matched, kw)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating keywords: %w", err)
	}
	rows.Close()

	if len(matched) == 0 {
		return []domain.Subscriber{}, nil
	}

	return querySubscribers(ctx, db, `
		SELECT DISTINCT u.id, u.address, u.name, u.email, u.intention,
			u.group_id, u.group_name, u.invite_link, u.created_at, u.updated_at
		FROM subscribers u
		JOIN keywords k ON k.subscriber_id = u.id
		WHERE k.keyword IN (`+placeholders(len(matched))+`)
		AND u.group_id != ''
	`, matched...)
}
