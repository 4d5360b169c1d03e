// Package store persists the cross-post settings record and post records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/blacktop/crosspost/internal/crosspost"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var driverAliases = map[string]string{
	"":             DriverSQLite,
	"sqlite":       DriverSQLite,
	DriverSQLite:   DriverSQLite,
	"postgresql":   DriverPostgres,
	DriverPostgres: DriverPostgres,
}

// ParseDriver maps a configured driver name or alias to DriverSQLite or
// DriverPostgres. An empty name selects sqlite3.
func ParseDriver(name string) (string, error) {
	driver, ok := driverAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
	return driver, nil
}

// Store is the persistence surface used by the dispatcher and the server.
type Store interface {
	crosspost.Store
	SaveConfig(ctx context.Context, cfg crosspost.Config) error
	UpsertPost(ctx context.Context, post crosspost.Post) error
	Close() error
}

type sqlRepo struct {
	db     *sql.DB
	driver string
}

var _ Store = (*sqlRepo)(nil)

// Open connects to driver with dsn and applies pending migrations. For
// sqlite3 the dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	driver, err := ParseDriver(driver)
	if err != nil {
		return nil, err
	}
	if driver == DriverPostgres {
		return openPostgres(ctx, dsn)
	}
	return openSQLite(ctx, dsn)
}

func openSQLite(ctx context.Context, path string) (Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	// single writer; sqlite serialises writes anyway
	db.SetMaxOpenConns(1)

	return initRepo(ctx, db, DriverSQLite)
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, err
	}
	return initRepo(ctx, db, DriverPostgres)
}

func initRepo(ctx context.Context, db *sql.DB, driver string) (Store, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := runMigrations(db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return &sqlRepo{db: db, driver: driver}, nil
}

// rebind rewrites ? placeholders into the driver's bind style.
func (r *sqlRepo) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *sqlRepo) LoadConfig(ctx context.Context) (crosspost.Config, error) {
	var cfg crosspost.Config
	err := r.db.QueryRowContext(ctx,
		"SELECT profile_id, app_password, disable_scheduled_posting FROM settings WHERE id = 1",
	).Scan(&cfg.ProfileID, &cfg.AppPassword, &cfg.DisableScheduledPosting)
	if errors.Is(err, sql.ErrNoRows) {
		return crosspost.Config{}, nil
	}
	if err != nil {
		return crosspost.Config{}, fmt.Errorf("load settings: %w", err)
	}
	return cfg, nil
}

func (r *sqlRepo) SaveConfig(ctx context.Context, cfg crosspost.Config) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO settings (id, profile_id, app_password, disable_scheduled_posting, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			profile_id = excluded.profile_id,
			app_password = excluded.app_password,
			disable_scheduled_posting = excluded.disable_scheduled_posting,
			updated_at = excluded.updated_at`),
		strings.TrimSpace(cfg.ProfileID), strings.TrimSpace(cfg.AppPassword), cfg.DisableScheduledPosting, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *sqlRepo) GetPost(ctx context.Context, id int64) (crosspost.Post, error) {
	var (
		post         crosspost.Post
		crosspostURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, author_id, title, excerpt, content, featured_image_url, status, crosspost_url
		FROM posts WHERE id = ?`), id,
	).Scan(&post.ID, &post.AuthorID, &post.Title, &post.Excerpt, &post.Content, &post.FeaturedImageURL, &post.Status, &crosspostURL)
	if errors.Is(err, sql.ErrNoRows) {
		return crosspost.Post{}, crosspost.ErrPostNotFound
	}
	if err != nil {
		return crosspost.Post{}, fmt.Errorf("get post %d: %w", id, err)
	}
	post.CrosspostURL = crosspostURL.String

	rows, err := r.db.QueryContext(ctx, r.rebind("SELECT name FROM post_tags WHERE post_id = ? ORDER BY position"), id)
	if err != nil {
		return crosspost.Post{}, fmt.Errorf("get post %d tags: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return crosspost.Post{}, fmt.Errorf("scan tag: %w", err)
		}
		post.Tags = append(post.Tags, name)
	}
	if err := rows.Err(); err != nil {
		return crosspost.Post{}, fmt.Errorf("get post %d tags: %w", id, err)
	}

	return post, nil
}

// UpsertPost stores the host's copy of a post. An existing crosspost URL is
// never cleared or replaced.
func (r *sqlRepo) UpsertPost(ctx context.Context, post crosspost.Post) error {
	if post.ID <= 0 {
		return crosspost.ValidationError{Provider: "store", Reason: "post id must be positive"}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO posts (id, author_id, title, excerpt, content, featured_image_url, status, crosspost_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		ON CONFLICT (id) DO UPDATE SET
			author_id = excluded.author_id,
			title = excluded.title,
			excerpt = excluded.excerpt,
			content = excluded.content,
			featured_image_url = excluded.featured_image_url,
			status = excluded.status,
			crosspost_url = COALESCE(posts.crosspost_url, excluded.crosspost_url),
			updated_at = excluded.updated_at`),
		post.ID, post.AuthorID, post.Title, post.Excerpt, post.Content, post.FeaturedImageURL, post.Status, post.CrosspostURL, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert post %d: %w", post.ID, err)
	}

	if _, err := tx.ExecContext(ctx, r.rebind("DELETE FROM post_tags WHERE post_id = ?"), post.ID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for i, name := range post.Tags {
		if _, err := tx.ExecContext(ctx, r.rebind("INSERT INTO post_tags (post_id, position, name) VALUES (?, ?, ?)"), post.ID, i, name); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}

	return tx.Commit()
}

// SetCrosspostURL sets the idempotency marker once. It fails with
// crosspost.ErrAlreadyPosted if the marker is already set.
func (r *sqlRepo) SetCrosspostURL(ctx context.Context, id int64, url string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(
		"UPDATE posts SET crosspost_url = ?, updated_at = ? WHERE id = ? AND crosspost_url IS NULL"),
		url, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("set crosspost url: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var existing sql.NullString
	err = r.db.QueryRowContext(ctx, r.rebind("SELECT crosspost_url FROM posts WHERE id = ?"), id).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return crosspost.ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("set crosspost url: %w", err)
	}
	return crosspost.ErrAlreadyPosted
}

func (r *sqlRepo) Close() error {
	return r.db.Close()
}
