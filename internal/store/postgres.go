package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

const defaultPGTimeout = 5 * time.Second

// Postgres 使用 pgx 连接池；唯一性由 lower(title) 唯一索引保证。
type Postgres struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

var _ Store = (*Postgres)(nil)

// OpenPostgres 连接数据库并应用迁移。
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Postgres{db: pool, timeout: defaultPGTimeout}
	if err := s.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Postgres) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRow(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = $1", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		// 无参数的 Exec 走简单协议，允许一次执行多条语句。
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.db.Close()
	return nil
}

func (s *Postgres) Get(ctx context.Context, title string) (domain.MovieRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRow(ctx, `SELECT `+movieColumns+` FROM movies WHERE lower(title) = lower($1)`, strings.TrimSpace(title))
	rec, err := scanPGMovie(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MovieRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *Postgres) Create(ctx context.Context, rec domain.MovieRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx,
		`INSERT INTO movies (`+movieColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
         ON CONFLICT DO NOTHING`,
		strings.TrimSpace(rec.Title), rec.ReleaseYear, rec.Duration, rec.Category, rec.IMDbRating,
		rec.Director, rec.Cast, rec.PlotSummary,
	)
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, title string, patch domain.MoviePatch) (domain.MovieRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.MovieRecord{}, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	row := tx.QueryRow(ctx, `SELECT id, `+movieColumns+` FROM movies WHERE lower(title) = lower($1) FOR UPDATE`, strings.TrimSpace(title))
	cur, err := scanPGMovie(row, &id)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = tx.Exec(ctx,
		`UPDATE movies SET title = $1, release_year = $2, duration = $3, category = $4, imdb_rating = $5,
             director = $6, cast_members = $7, plot_summary = $8, updated_at = now()
         WHERE id = $9`,
		next.Title, next.ReleaseYear, next.Duration, next.Category, next.IMDbRating,
		next.Director, next.Cast, next.PlotSummary, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.MovieRecord{}, ErrDuplicate
		}
		return domain.MovieRecord{}, fmt.Errorf("update movie: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.MovieRecord{}, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

func (s *Postgres) Delete(ctx context.Context, title string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM movies WHERE lower(title) = lower($1)`, strings.TrimSpace(title))
	if err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]domain.MovieRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY lower(title), id`)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	out := []domain.MovieRecord{}
	for rows.Next() {
		rec, err := scanPGMovie(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanPGMovie 读取 movieColumns；pgx 直接把 NULL 扫描为 nil 指针。
func scanPGMovie(row pgx.Row, prefix ...any) (domain.MovieRecord, error) {
	var rec domain.MovieRecord
	dest := append(prefix,
		&rec.Title, &rec.ReleaseYear, &rec.Duration, &rec.Category, &rec.IMDbRating,
		&rec.Director, &rec.Cast, &rec.PlotSummary,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.MovieRecord{}, err
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
