package storage

import (
	"context"

	"github.com/daveduya011/wph-task-manager/domain"
)

// TaskStore persists tasks keyed by id.
type TaskStore interface {
	Create(ctx context.Context, f domain.TaskFields) (domain.Task, error)
	Get(ctx context.Context, id string) (domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
	Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) error
}

// AccountStore persists sign-in accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, email, name string, passwordHash []byte) (domain.Account, error)
	AccountByEmail(ctx context.Context, email string) (domain.Account, error)
}

// Pinger is implemented by stores able to report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
