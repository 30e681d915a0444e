package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/daveduya011/wph-task-manager/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore implements TaskStore and AccountStore on database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// OpenSQL opens and pings a SQLite or Postgres database.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "taskboard.db"
		}
		if dsn != ":memory:" && !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// SQLite has a single writer; one connection also keeps :memory: databases alive.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewSQLStore(db, driver), nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

// DB exposes the underlying handle for migrations.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Driver returns the configured driver name.
func (s *SQLStore) Driver() string { return s.driver }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// rebind rewrites ? placeholders into $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = "id, title, description, due_date, priority, status"

func (s *SQLStore) Create(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	t, err := domain.NewTask(uuid.NewString(), f)
	if err != nil {
		return domain.Task{}, err
	}
	tok, err := t.Status.StorageToken()
	if err != nil {
		return domain.Task{}, err
	}
	now := s.now().UnixNano()
	_, err = s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO tasks ("+taskColumns+", created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		t.ID, t.Title, nullString(t.Description), nullString(t.DueDate), string(t.Priority), tok, now, now)
	if err != nil {
		return domain.Task{}, domain.Transient("create task", err)
	}
	return t, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (domain.Task, error) {
	return s.get(ctx, s.db, id, false)
}

func (s *SQLStore) get(ctx context.Context, q querier, id string, forUpdate bool) (domain.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"
	if forUpdate && s.driver == DriverPostgres {
		query += " FOR UPDATE"
	}
	t, err := scanTask(q.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, domain.Transient("get task", err)
	}
	return t, nil
}

func (s *SQLStore) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks ORDER BY created_at, id")
	if err != nil {
		return nil, domain.Transient("list tasks", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, domain.Transient("list tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Transient("list tasks", err)
	}
	return tasks, nil
}

// Update applies p inside a transaction so concurrent writers to the same id
// are serialized by the database; the last committed write wins.
func (s *SQLStore) Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, domain.Transient("update task", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := s.get(ctx, tx, id, true)
	if err != nil {
		return domain.Task{}, err
	}
	next, err := p.Apply(cur)
	if err != nil {
		return domain.Task{}, err
	}
	tok, err := next.Status.StorageToken()
	if err != nil {
		return domain.Task{}, err
	}
	_, err = tx.ExecContext(ctx, s.rebind(
		"UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?, status = ?, updated_at = ? WHERE id = ?"),
		next.Title, nullString(next.Description), nullString(next.DueDate), string(next.Priority), tok, s.now().UnixNano(), id)
	if err != nil {
		return domain.Task{}, domain.Transient("update task", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, domain.Transient("update task", err)
	}
	return next, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return domain.Transient("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Transient("delete task", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (domain.Task, error) {
	var (
		t           domain.Task
		description sql.NullString
		dueDate     sql.NullString
		priority    string
		status      string
	)
	if err := r.Scan(&t.ID, &t.Title, &description, &dueDate, &priority, &status); err != nil {
		return domain.Task{}, err
	}
	t.Description = description.String
	t.DueDate = dueDate.String
	t.Priority = domain.Priority(priority)
	if !t.Priority.Valid() {
		return domain.Task{}, fmt.Errorf("task %s: invalid stored priority %q", t.ID, priority)
	}
	st, err := domain.StatusFromStorage(status)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", t.ID, err)
	}
	t.Status = st
	return t, nil
}

func (s *SQLStore) CreateAccount(ctx context.Context, email, name string, passwordHash []byte) (domain.Account, error) {
	if _, err := s.AccountByEmail(ctx, email); err == nil {
		return domain.Account{}, fmt.Errorf("account %s: %w", email, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, err
	}
	acc := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		"INSERT INTO accounts (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)"),
		acc.ID, acc.Email, acc.Name, acc.PasswordHash, acc.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Account{}, fmt.Errorf("account %s: %w", email, domain.ErrConflict)
		}
		return domain.Account{}, domain.Transient("create account", err)
	}
	return acc, nil
}

func (s *SQLStore) AccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	var (
		acc     domain.Account
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT id, email, name, password_hash, created_at FROM accounts WHERE email = ?"), email).
		Scan(&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("account %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, domain.Transient("get account", err)
	}
	acc.CreatedAt = time.Unix(0, created).UTC()
	return acc, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
