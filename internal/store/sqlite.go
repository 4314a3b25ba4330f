package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// SQLite 是基于 modernc.org/sqlite 的单文件存储。
//
// title 列使用 UNIQUE COLLATE NOCASE：查找与唯一性都大小写不敏感（ASCII 范围）。
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

const movieColumns = `title, release_year, duration, category, imdb_rating, director, cast_members, plot_summary`

// OpenSQLite 打开（必要时创建）数据库文件并应用迁移。
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite 路径不能为空")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 单连接：PRAGMA 对所有语句生效，写入天然串行（也让 :memory: 只有一份库）。
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLite{db: db, path: path}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, title string) (domain.MovieRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE title = ?`, strings.TrimSpace(title))
	rec, err := scanSQLiteMovie(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MovieRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLite) Create(ctx context.Context, rec domain.MovieRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.Title = strings.TrimSpace(rec.Title)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO movies (`+movieColumns+`, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT DO NOTHING`,
		rec.Title, nullable(rec.ReleaseYear), nullable(rec.Duration), nullable(rec.Category), nullableFloat(rec.IMDbRating),
		nullable(rec.Director), nullable(rec.Cast), nullable(rec.PlotSummary), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert movie rows affected: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, title string, patch domain.MoviePatch) (domain.MovieRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.MovieRecord{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	row := tx.QueryRowContext(ctx, `SELECT id, `+movieColumns+` FROM movies WHERE title = ?`, strings.TrimSpace(title))
	cur, err := scanSQLiteMovie(row, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MovieRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.MovieRecord{}, err
	}

	next := patch.Apply(cur)
	next.Title = strings.TrimSpace(next.Title)
	if err := next.Validate(); err != nil {
		return domain.MovieRecord{}, err
	}
	var clash int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM movies WHERE title = ? AND id != ?`, next.Title, id).Scan(&clash); err != nil {
		return domain.MovieRecord{}, fmt.Errorf("check title clash: %w", err)
	}
	if clash > 0 {
		return domain.MovieRecord{}, ErrDuplicate
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE movies SET title = ?, release_year = ?, duration = ?, category = ?, imdb_rating = ?,
             director = ?, cast_members = ?, plot_summary = ?, updated_at = ?
         WHERE id = ?`,
		next.Title, nullable(next.ReleaseYear), nullable(next.Duration), nullable(next.Category), nullableFloat(next.IMDbRating),
		nullable(next.Director), nullable(next.Cast), nullable(next.PlotSummary), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return domain.MovieRecord{}, fmt.Errorf("update movie: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.MovieRecord{}, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

func (s *SQLite) Delete(ctx context.Context, title string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM movies WHERE title = ?`, strings.TrimSpace(title))
	if err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete movie rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]domain.MovieRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY title COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	out := []domain.MovieRecord{}
	for rows.Next() {
		rec, err := scanSQLiteMovie(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSQLiteMovie 读取 movieColumns；prefix 是排在这些列之前的额外目标（例如 id）。
func scanSQLiteMovie(row rowScanner, prefix ...any) (domain.MovieRecord, error) {
	var (
		rec                                            domain.MovieRecord
		year, duration, category, director, cast, plot sql.NullString
		rating                                         sql.NullFloat64
	)
	dest := append(prefix, &rec.Title, &year, &duration, &category, &rating, &director, &cast, &plot)
	if err := row.Scan(dest...); err != nil {
		return domain.MovieRecord{}, err
	}
	rec.ReleaseYear = nullString(year)
	rec.Duration = nullString(duration)
	rec.Category = nullString(category)
	rec.Director = nullString(director)
	rec.Cast = nullString(cast)
	rec.PlotSummary = nullString(plot)
	if rating.Valid {
		r := rating.Float64
		rec.IMDbRating = &r
	}
	return rec, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// nullable 把可空字段转换为驱动参数（nil => NULL）。
func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
