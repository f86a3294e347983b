package db

import (
	"context"
	"fmt"

	"github.com/livinlefevreloca/trmnlwatch/internal/feed"
)

// feedTable maps a feed kind to its table. Table names never come from input.
func feedTable(kind feed.Kind) (string, error) {
	switch kind {
	case feed.Announcements:
		return "announcements", nil
	case feed.BlogPosts:
		return "blog_posts", nil
	default:
		return "", fmt.Errorf("no table for feed kind %d", int(kind))
	}
}

// GetFeedItems returns every stored item of a feed, newest first
func (db *DB) GetFeedItems(ctx context.Context, kind feed.Kind) ([]feed.Item, error) {
	table, err := feedTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, title, summary, link, published_at, is_read, fetched_at
		FROM %s
		ORDER BY published_at DESC, id
	`, table)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []feed.Item{}
	for rows.Next() {
		var (
			item        feed.Item
			publishedAt int64
			fetchedAt   int64
		)
		err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Summary,
			&item.Link,
			&publishedAt,
			&item.IsRead,
			&fetchedAt,
		)
		if err != nil {
			return nil, err
		}
		item.PublishedAt = fromMillis(publishedAt)
		item.FetchedAt = fromMillis(fetchedAt)
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// UpsertFeedItems inserts new items and replaces existing rows sharing an id,
// all within one transaction.
func (db *DB) UpsertFeedItems(ctx context.Context, kind feed.Kind, items []feed.Item) error {
	if len(items) == 0 {
		return nil
	}

	return db.WithTransaction(ctx, func(tx *Tx) error {
		return tx.UpsertFeedItems(ctx, kind, items)
	})
}

// UpsertFeedItems upserts items within a transaction
func (tx *Tx) UpsertFeedItems(ctx context.Context, kind feed.Kind, items []feed.Item) error {
	table, err := feedTable(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, summary, link, published_at, is_read, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			link = excluded.link,
			published_at = excluded.published_at,
			is_read = excluded.is_read,
			fetched_at = excluded.fetched_at
	`, table)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		_, err := stmt.ExecContext(ctx,
			item.ID,
			item.Title,
			item.Summary,
			item.Link,
			millis(item.PublishedAt),
			item.IsRead,
			millis(item.FetchedAt),
		)
		if err != nil {
			return fmt.Errorf("upserting %s item %s: %w", kind, item.ID, err)
		}
	}

	return nil
}

// MarkFeedItemRead marks a single item as read
func (db *DB) MarkFeedItemRead(ctx context.Context, kind feed.Kind, id string) error {
	table, err := feedTable(kind)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET is_read = 1 WHERE id = ?`, table), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkAllFeedItemsRead marks every unread item of a feed as read and returns
// how many changed
func (db *DB) MarkAllFeedItemsRead(ctx context.Context, kind feed.Kind) (int64, error) {
	table, err := feedTable(kind)
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET is_read = 1 WHERE is_read = 0`, table))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// UnreadCount returns the number of unread items in a feed
func (db *DB) UnreadCount(ctx context.Context, kind feed.Kind) (int, error) {
	table, err := feedTable(kind)
	if err != nil {
		return 0, err
	}

	var count int
	err = db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_read = 0`, table)).Scan(&count)
	return count, err
}
