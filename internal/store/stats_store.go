package store

import (
	"context"
	"fmt"
	"os"
)

// Stats holds row counts for every relation plus the database file size.
type Stats struct {
	Subscribers         int   `json:"subscribers"`
	AssignedSubscribers int   `json:"assigned_subscribers"`
	Groups              int   `json:"groups"`
	IncompleteGroups    int   `json:"incomplete_groups"`
	Keywords            int   `json:"keywords"`
	UniqueKeywords      int   `json:"unique_keywords"`
	ProcessedPosts      int   `json:"processed_posts"`
	Admins              int   `json:"admins"`
	DatabaseBytes       int64 `json:"database_bytes"`
}

// Stats counts all relations under one lock so the numbers are mutually consistent.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var st Stats
	err = db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM subscribers),
			(SELECT COUNT(*) FROM subscribers WHERE group_id != ''),
			(SELECT COUNT(*) FROM groups),
			(SELECT COUNT(*) FROM groups WHERE group_name = '' OR invite_link = ''),
			(SELECT COUNT(*) FROM keywords),
			(SELECT COUNT(DISTINCT keyword) FROM keywords),
			(SELECT COUNT(*) FROM processed_posts),
			(SELECT COUNT(*) FROM admins)
	`).Scan(
		&st.Subscribers, &st.AssignedSubscribers, &st.Groups, &st.IncompleteGroups,
		&st.Keywords, &st.UniqueKeywords, &st.ProcessedPosts, &st.Admins,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		st.DatabaseBytes = info.Size()
	}
	return &st, nil
}
