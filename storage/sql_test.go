package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/daveduya011/wph-task-manager/domain"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQL(ctx, DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := Migrate(ctx, s.DB(), DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSQLStoreCreateThenGet(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, domain.TaskFields{
		Title: "Write report", Description: "draft", DueDate: "2025-06-01",
		Priority: domain.PriorityHigh, Status: domain.StatusTodo,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != created {
		t.Fatalf("get returned %#v, want %#v", got, created)
	}
}

func TestSQLStoreRejectsInvalidFields(t *testing.T) {
	s := newTestSQLStore(t)
	_, err := s.Create(context.Background(), domain.TaskFields{Title: "", Priority: domain.PriorityLow, Status: domain.StatusTodo})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	tasks, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("invalid task must not be persisted, got %d rows", len(tasks))
	}
}

func TestSQLStoreScenario(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, domain.TaskFields{Title: "Write report", Priority: domain.PriorityHigh, Status: domain.StatusTodo})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.StatusTodo {
		t.Fatalf("unexpected status %q", created.Status)
	}

	status := domain.StatusInProgress
	if _, err := s.Update(ctx, created.ID, domain.TaskPatch{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusInProgress || got.Title != "Write report" || got.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected task after update: %#v", got)
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSQLStoreMissingIDs(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()
	title := "x"

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if _, err := s.Update(ctx, "missing", domain.TaskPatch{Title: &title}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
}

func TestSQLStoreStoresStatusTokens(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, domain.TaskFields{Title: "x", Priority: domain.PriorityLow, Status: domain.StatusInProgress})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var raw string
	if err := s.DB().QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", created.ID).Scan(&raw); err != nil {
		t.Fatalf("select raw status: %v", err)
	}
	if raw != "In_Progress" {
		t.Fatalf("expected storage token, got %q", raw)
	}
}

func TestSQLStoreRejectsCorruptStatus(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, domain.TaskFields{Title: "x", Priority: domain.PriorityLow, Status: domain.StatusTodo})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// The CHECK constraint would reject the display form.
	if _, err := s.DB().ExecContext(ctx, "PRAGMA ignore_check_constraints = ON"); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, "UPDATE tasks SET status = 'In Progress' WHERE id = ?", created.ID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); !domain.IsTransient(err) {
		t.Fatalf("expected decode failure to surface as transient error, got %v", err)
	}
}

func TestSQLStoreConcurrentUpdatesSameID(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()
	created, err := s.Create(ctx, domain.TaskFields{Title: "x", Priority: domain.PriorityLow, Status: domain.StatusTodo})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(domain.Statuses)*4)
	for i := 0; i < 4; i++ {
		for _, st := range domain.Statuses {
			st := st
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Update(ctx, created.ID, domain.TaskPatch{Status: &st}); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Status.Valid() || got.Title != "x" {
		t.Fatalf("unexpected final task: %#v", got)
	}
}

func TestSQLStoreAccounts(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, "ada@example.com", "Ada", []byte("hash"))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	got, err := s.AccountByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != acc.ID || string(got.PasswordHash) != "hash" || got.Name != "Ada" {
		t.Fatalf("unexpected account: %#v", got)
	}
	if _, err := s.CreateAccount(ctx, "ada@example.com", "Other", []byte("x")); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	if _, err := s.AccountByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	s := &SQLStore{driver: DriverPostgres}
	got := s.rebind("UPDATE tasks SET title = ?, status = ? WHERE id = ?")
	want := "UPDATE tasks SET title = $1, status = $2 WHERE id = $3"
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}
	if q := (&SQLStore{driver: DriverSQLite}).rebind("a = ?"); q != "a = ?" {
		t.Fatalf("sqlite query must be untouched, got %q", q)
	}
}

func TestMigrateUnknownDriver(t *testing.T) {
	s := newTestSQLStore(t)
	if err := Migrate(context.Background(), s.DB(), "oracle"); err == nil {
		t.Fatal("expected error for driver without migrations")
	}
}
