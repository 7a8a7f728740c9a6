package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

type SQLiteRepo struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewSQLiteRepo(dsn string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Every pooled connection to an in-memory database would see its own
	// empty schema.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	// Reasonable pragmas for an app server
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteRepo{db: db, tracer: otel.Tracer("tasks/sqlite")}, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

func (r *SQLiteRepo) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "sqlite"))
	return r.tracer.Start(ctx, "tasks."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create implements Repository.Create
func (r *SQLiteRepo) Create(ctx context.Context, in NewTask) (t Task, err error) {
	in, err = normalize(in)
	if err != nil {
		return Task{}, err
	}
	ctx, span := r.span(ctx, "Create")
	defer func() { endSpan(span, err) }()

	var due sql.NullString
	if in.DueDate != nil {
		due = sql.NullString{String: in.DueDate.Format(DateLayout), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (title, description, due_date, priority, completed)
		VALUES (?, ?, ?, ?, 0)
	`, in.Title, in.Description, due, string(in.Priority))
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
	}, nil
}

// List implements Repository.List
func (r *SQLiteRepo) List(ctx context.Context) (out []Task, err error) {
	ctx, span := r.span(ctx, "List")
	defer func() { endSpan(span, err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, due_date, priority, completed
		FROM tasks
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id int64) (t Task, err error) {
	ctx, span := r.span(ctx, "Get", attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, due_date, priority, completed
		FROM tasks
		WHERE id = ?
	`, id)
	t, err = scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepo) MarkCompleted(ctx context.Context, id int64) (err error) {
	ctx, span := r.span(ctx, "MarkCompleted", attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	// SQLite counts matched rows, so re-completing still reports one change.
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	return requireOneRow(res, id)
}

func (r *SQLiteRepo) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := r.span(ctx, "Delete", attribute.Int64("task.id", id))
	defer func() { endSpan(span, err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return requireOneRow(res, id)
}

func (r *SQLiteRepo) Count(ctx context.Context) (n int, err error) {
	ctx, span := r.span(ctx, "Count")
	defer func() { endSpan(span, err) }()

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (Task, error) {
	var (
		t        Task
		due      sql.NullString
		priority string
	)
	if err := s.Scan(&t.ID, &t.Title, &t.Description, &due, &priority, &t.Completed); err != nil {
		return Task{}, err
	}
	t.Priority = Priority(priority)
	if due.Valid && due.String != "" {
		d, err := time.Parse(DateLayout, due.String)
		if err != nil {
			return Task{}, fmt.Errorf("task %d: bad due_date %q: %w", t.ID, due.String, err)
		}
		t.DueDate = &d
	}
	return t, nil
}

func requireOneRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Helper to build DSN like: file:/absolute/path?_pragma=busy_timeout(5000)
func SQLiteFileDSN(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file:" + filepath.ToSlash(abs) + "?_pragma=busy_timeout(5000)", nil
}
