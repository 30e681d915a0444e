package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/daveduya011/wph-task-manager/domain"
)

// tasksPartition holds every task; the board has no tenants.
const tasksPartition = "tasks"

// tableClient is the subset of the Azure Tables API used by TableStore.
type tableClient interface {
	add(ctx context.Context, entity []byte) error
	get(ctx context.Context, pk, rk string) ([]byte, error)
	replace(ctx context.Context, entity []byte) error
	remove(ctx context.Context, pk, rk string) error
	list(ctx context.Context, pk string) ([][]byte, error)
}

// TableStore implements TaskStore on an Azure Storage table.
type TableStore struct {
	table tableClient
}

// NewTableStore connects to tableName using connStr.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: azTable{c: svc.NewClient(tableName)}}, nil
}

type taskEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title"`
	Description  string `json:"Description,omitempty"`
	DueDate      string `json:"DueDate,omitempty"`
	Priority     string `json:"Priority"`
	Status       string `json:"Status"`
}

func toEntity(t domain.Task) ([]byte, error) {
	tok, err := t.Status.StorageToken()
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(taskEntity{
		PartitionKey: tasksPartition,
		RowKey:       t.ID,
		Title:        t.Title,
		Description:  t.Description,
		DueDate:      t.DueDate,
		Priority:     string(t.Priority),
		Status:       tok,
	})
}

func fromEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	st, err := domain.StatusFromStorage(ent.Status)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", ent.RowKey, err)
	}
	t := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		DueDate:     ent.DueDate,
		Priority:    domain.Priority(ent.Priority),
		Status:      st,
	}
	if !t.Priority.Valid() {
		return domain.Task{}, fmt.Errorf("task %s: invalid stored priority %q", t.ID, ent.Priority)
	}
	return t, nil
}

func (s *TableStore) Create(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	t, err := domain.NewTask(uuid.NewString(), f)
	if err != nil {
		return domain.Task{}, err
	}
	payload, err := toEntity(t)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.table.add(ctx, payload); err != nil {
		return domain.Task{}, domain.Transient("create task", err)
	}
	return t, nil
}

func (s *TableStore) Get(ctx context.Context, id string) (domain.Task, error) {
	data, err := s.table.get(ctx, tasksPartition, id)
	if err != nil {
		return domain.Task{}, tableErr("get task", id, err)
	}
	t, err := fromEntity(data)
	if err != nil {
		return domain.Task{}, domain.Transient("get task", err)
	}
	return t, nil
}

func (s *TableStore) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.table.list(ctx, tasksPartition)
	if err != nil {
		return nil, domain.Transient("list tasks", err)
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		t, err := fromEntity(row)
		if err != nil {
			return nil, domain.Transient("list tasks", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Update reads, patches and replaces the entity unconditionally, so two
// concurrent writers resolve as last-write-wins.
func (s *TableStore) Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	next, err := p.Apply(cur)
	if err != nil {
		return domain.Task{}, err
	}
	payload, err := toEntity(next)
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.table.replace(ctx, payload); err != nil {
		return domain.Task{}, tableErr("update task", id, err)
	}
	return next, nil
}

func (s *TableStore) Delete(ctx context.Context, id string) error {
	if err := s.table.remove(ctx, tasksPartition, id); err != nil {
		return tableErr("delete task", id, err)
	}
	return nil
}

func tableErr(op, id string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return domain.Transient(op, err)
}

type azTable struct {
	c *aztables.Client
}

func (a azTable) add(ctx context.Context, entity []byte) error {
	_, err := a.c.AddEntity(ctx, entity, nil)
	return err
}

func (a azTable) get(ctx context.Context, pk, rk string) ([]byte, error) {
	resp, err := a.c.GetEntity(ctx, pk, rk, nil)
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (a azTable) replace(ctx context.Context, entity []byte) error {
	etag := azcore.ETagAny
	_, err := a.c.UpdateEntity(ctx, entity, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (a azTable) remove(ctx context.Context, pk, rk string) error {
	_, err := a.c.DeleteEntity(ctx, pk, rk, nil)
	return err
}

func (a azTable) list(ctx context.Context, pk string) ([][]byte, error) {
	filter := "PartitionKey eq '" + pk + "'"
	pager := a.c.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out [][]byte
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Entities...)
	}
	return out, nil
}
