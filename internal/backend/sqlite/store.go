// Package sqlite provides the SQLite-backed key factor store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Metaculus/metaculus-sub005/internal/backend"
	"github.com/Metaculus/metaculus-sub005/internal/backend/sqlite/migrations"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// Store persists comments, key factors and votes in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ backend.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateComment inserts a comment and its key factors in one transaction.
func (s *Store) CreateComment(ctx context.Context, c backend.CommentRecord, drafts []keyfactor.Draft) (backend.CommentRecord, []keyfactor.KeyFactor, error) {
	if err := ctx.Err(); err != nil {
		return backend.CommentRecord{}, nil, err
	}
	if c.PostID == 0 || c.AuthorID == 0 {
		return backend.CommentRecord{}, nil, fmt.Errorf("post id and author id are required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return backend.CommentRecord{}, nil, fmt.Errorf("begin create comment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO comments (post_id, author_id, text, is_private, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.PostID, c.AuthorID, c.Text, boolToInt(c.IsPrivate), toMillis(c.CreatedAt),
	)
	if err != nil {
		return backend.CommentRecord{}, nil, fmt.Errorf("insert comment: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return backend.CommentRecord{}, nil, fmt.Errorf("comment id: %w", err)
	}
	c.CreatedAt = fromMillis(toMillis(c.CreatedAt))
	factors, err := insertKeyFactors(ctx, tx, c, drafts, c.CreatedAt)
	if err != nil {
		return backend.CommentRecord{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return backend.CommentRecord{}, nil, fmt.Errorf("commit create comment: %w", err)
	}
	return c, factors, nil
}

// AddKeyFactors attaches drafts to an existing comment.
func (s *Store) AddKeyFactors(ctx context.Context, commentID int64, drafts []keyfactor.Draft, at time.Time) ([]keyfactor.KeyFactor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add key factors: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanComment(tx.QueryRowContext(ctx, commentQuery, commentID))
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	factors, err := insertKeyFactors(ctx, tx, c, drafts, fromMillis(toMillis(at)))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add key factors: %w", err)
	}
	return factors, nil
}

func insertKeyFactors(ctx context.Context, tx *sql.Tx, c backend.CommentRecord, drafts []keyfactor.Draft, at time.Time) ([]keyfactor.KeyFactor, error) {
	out := make([]keyfactor.KeyFactor, 0, len(drafts))
	for _, d := range drafts {
		content, err := keyfactor.MarshalDraft(d)
		if err != nil {
			return nil, fmt.Errorf("encode key factor: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO key_factors (comment_id, post_id, author_id, kind, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.PostID, c.AuthorID, string(d.Kind()), string(content), toMillis(at),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, backend.ErrNotFound
			}
			return nil, fmt.Errorf("insert key factor: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("key factor id: %w", err)
		}
		out = append(out, keyfactor.KeyFactor{
			ID:        id,
			CommentID: c.ID,
			PostID:    c.PostID,
			AuthorID:  c.AuthorID,
			Draft:     d.Clone(),
			CreatedAt: at,
		})
	}
	return out, nil
}

const commentQuery = `SELECT id, post_id, author_id, text, is_private, created_at FROM comments WHERE id = ?`

// GetComment returns one comment by id.
func (s *Store) GetComment(ctx context.Context, id int64) (backend.CommentRecord, error) {
	if err := ctx.Err(); err != nil {
		return backend.CommentRecord{}, err
	}
	return scanComment(s.sqlDB.QueryRowContext(ctx, commentQuery, id))
}

func scanComment(row *sql.Row) (backend.CommentRecord, error) {
	var (
		c         backend.CommentRecord
		isPrivate int
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &isPrivate, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.CommentRecord{}, backend.ErrNotFound
		}
		return backend.CommentRecord{}, fmt.Errorf("get comment: %w", err)
	}
	c.IsPrivate = isPrivate != 0
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

const keyFactorSelect = `
SELECT kf.id, kf.comment_id, kf.post_id, kf.author_id, kf.content, kf.created_at,
       COALESCE(SUM(v.value), 0),
       COUNT(v.user_id),
       COALESCE(MAX(CASE WHEN v.user_id = ? THEN v.value END), 0)
  FROM key_factors kf
  JOIN comments c ON c.id = kf.comment_id
  LEFT JOIN key_factor_votes v ON v.key_factor_id = kf.id
 WHERE (c.is_private = 0 OR c.author_id = ?)`

// ListKeyFactors returns the post's key factors visible to viewerID in
// creation order. Key factors on other users' private comments are hidden.
func (s *Store) ListKeyFactors(ctx context.Context, postID, viewerID int64) ([]keyfactor.KeyFactor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		keyFactorSelect+` AND kf.post_id = ? GROUP BY kf.id ORDER BY kf.id`,
		viewerID, viewerID, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("list key factors: %w", err)
	}
	defer rows.Close()
	var out []keyfactor.KeyFactor
	for rows.Next() {
		kf, err := scanKeyFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, kf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key factors: %w", err)
	}
	return out, nil
}

// GetKeyFactor returns one key factor with viewerID's vote.
func (s *Store) GetKeyFactor(ctx context.Context, id, viewerID int64) (keyfactor.KeyFactor, error) {
	if err := ctx.Err(); err != nil {
		return keyfactor.KeyFactor{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		keyFactorSelect+` AND kf.id = ? GROUP BY kf.id`,
		viewerID, viewerID, id,
	)
	if err != nil {
		return keyfactor.KeyFactor{}, fmt.Errorf("get key factor: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return keyfactor.KeyFactor{}, fmt.Errorf("get key factor: %w", err)
		}
		return keyfactor.KeyFactor{}, backend.ErrNotFound
	}
	return scanKeyFactor(rows)
}

func scanKeyFactor(rows *sql.Rows) (keyfactor.KeyFactor, error) {
	var (
		kf        keyfactor.KeyFactor
		content   string
		createdAt int64
		score     int64
	)
	if err := rows.Scan(&kf.ID, &kf.CommentID, &kf.PostID, &kf.AuthorID, &content, &createdAt,
		&score, &kf.Vote.Count, &kf.Vote.UserVote); err != nil {
		return keyfactor.KeyFactor{}, fmt.Errorf("scan key factor: %w", err)
	}
	d, err := keyfactor.UnmarshalDraft([]byte(content))
	if err != nil {
		return keyfactor.KeyFactor{}, fmt.Errorf("decode key factor %d: %w", kf.ID, err)
	}
	kf.Draft = d
	kf.Vote.Score = float64(score)
	kf.CreatedAt = fromMillis(createdAt)
	return kf, nil
}

// SetVote upserts a vote; value 0 removes it.
func (s *Store) SetVote(ctx context.Context, keyFactorID, userID int64, voteType keyfactor.VoteType, value int, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == 0 {
		if _, err := s.sqlDB.ExecContext(ctx,
			`DELETE FROM key_factor_votes WHERE key_factor_id = ? AND user_id = ?`,
			keyFactorID, userID,
		); err != nil {
			return fmt.Errorf("clear vote: %w", err)
		}
		return nil
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO key_factor_votes (key_factor_id, user_id, vote_type, value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key_factor_id, user_id) DO UPDATE SET
		   vote_type = excluded.vote_type,
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		keyFactorID, userID, string(voteType), value, toMillis(at),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("set vote: %w", err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}
