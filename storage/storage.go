package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"board-api/domain"
)

const (
	queuePerCPU             = 10
	defaultQueueConcurrency = 10
	maxQueueConcurrency     = 64
)

// queueClient is the subset of the azqueue client the event journal uses.
type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to the task table and the board event journal.
// Tasks are partitioned by board id with the task id as row key.
type Storage struct {
	taskTable        *aztables.Client
	journalQueue     queueClient
	queueConcurrency int
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	jq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:        svc.NewClient(tasksTable),
		journalQueue:     jq,
		queueConcurrency: queueConcurrencyForCPU(runtime.NumCPU()),
	}, nil
}

func queueConcurrencyForCPU(cpu int) int {
	if cpu <= 0 {
		return defaultQueueConcurrency
	}
	n := cpu * queuePerCPU
	if n > maxQueueConcurrency {
		n = maxQueueConcurrency
	}
	return n
}

// taskEntity is the flat table shape of a task. List-valued fields are
// stored as JSON strings since table properties cannot nest.
type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	Category    string `json:"Category"`
	DueDate     string `json:"DueDate"`
	Priority    string `json:"Priority"`
	AssignedTo  string `json:"AssignedTo"`
	Subtasks    string `json:"Subtasks"`
	Order       *int32 `json:"Order,omitempty"`
}

// FetchTasks retrieves the full task collection for the given board.
func (s *Storage) FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, taskFromEntity(ent))
		}
	}
	return tasks, nil
}

func taskFromEntity(ent taskEntity) domain.Task {
	t := domain.Task{
		ID:          ent.RowKey,
		Status:      domain.Status(ent.Status),
		Title:       ent.Title,
		Description: ent.Description,
		Category:    ent.Category,
		DueDate:     ent.DueDate,
		Priority:    domain.Priority(ent.Priority),
	}
	if ent.Order != nil {
		order := int(*ent.Order)
		t.Order = &order
	}
	if ent.AssignedTo != "" {
		// Malformed legacy values are tolerated as an empty list.
		_ = sonic.UnmarshalString(ent.AssignedTo, &t.AssignedTo)
	}
	if ent.Subtasks != "" {
		// Subtask.UnmarshalJSON normalizes legacy bare-string entries.
		_ = sonic.UnmarshalString(ent.Subtasks, &t.Subtasks)
	}
	return t
}

// CreateTask persists a new task and returns the id the store assigned.
func (s *Storage) CreateTask(ctx context.Context, boardID string, t domain.Task) (string, error) {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: boardID, RowKey: id},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Category:    t.Category,
		DueDate:     t.DueDate,
		Priority:    string(t.Priority),
	}
	if t.Order != nil {
		order := int32(*t.Order)
		ent.Order = &order
	}
	if assigned, err := sonic.MarshalString(t.AssignedTo); err == nil {
		ent.AssignedTo = assigned
	}
	if subtasks, err := sonic.MarshalString(t.Subtasks); err == nil {
		ent.Subtasks = subtasks
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return "", err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return "", err
	}
	s.journal(ctx, boardID, id, domain.TaskCreated, t)
	return id, nil
}

// UpdateTaskFields merge-updates the entity so properties absent from the
// patch survive untouched.
func (s *Storage) UpdateTaskFields(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error {
	props := map[string]any{
		"PartitionKey": boardID,
		"RowKey":       taskID,
	}
	if patch.Status != nil {
		props["Status"] = string(*patch.Status)
	}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Description != nil {
		props["Description"] = *patch.Description
	}
	if patch.Category != nil {
		props["Category"] = *patch.Category
	}
	if patch.DueDate != nil {
		props["DueDate"] = *patch.DueDate
	}
	if patch.Priority != nil {
		props["Priority"] = string(*patch.Priority)
	}
	if patch.AssignedTo != nil {
		assigned, err := sonic.MarshalString(*patch.AssignedTo)
		if err != nil {
			return err
		}
		props["AssignedTo"] = assigned
	}
	if patch.Subtasks != nil {
		subtasks, err := sonic.MarshalString(*patch.Subtasks)
		if err != nil {
			return err
		}
		props["Subtasks"] = subtasks
	}
	if patch.Order != nil {
		props["Order"] = int32(*patch.Order)
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if _, err := s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge}); err != nil {
		return err
	}
	eventType := domain.TaskUpdated
	if patch.Status != nil {
		eventType = domain.TaskMoved
	}
	s.journal(ctx, boardID, taskID, eventType, patch)
	return nil
}

// DeleteTask removes the entity. Clients observe the deletion as the
// task's absence from the next snapshot.
func (s *Storage) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, boardID, taskID, nil); err != nil {
		return err
	}
	s.journal(ctx, boardID, taskID, domain.TaskDeleted, nil)
	return nil
}

// journal mirrors a mutation to the event queue, best effort. A journal
// failure never fails the mutation that already committed to the table.
func (s *Storage) journal(ctx context.Context, boardID, entityID, eventType string, payload any) {
	var data sonic.NoCopyRawMessage
	if payload != nil {
		if raw, err := sonic.Marshal(payload); err == nil {
			data = raw
		}
	}
	_ = s.JournalEvents(ctx, boardID, []domain.Event{{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: "task",
		Type:       eventType,
		Data:       data,
		Time:       domain.NextTimestamp(),
	}})
}

// JournalEvents enqueues board events for downstream read models, sending
// up to queueConcurrency messages in flight at once.
func (s *Storage) JournalEvents(ctx context.Context, boardID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	concurrency := s.queueConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	if concurrency > len(events) {
		concurrency = len(events)
	}

	sem := make(chan struct{}, concurrency)
	errCh := make(chan error, len(events))
	var wg sync.WaitGroup
	for _, ev := range events {
		env := domain.EventEnvelope{BoardID: boardID, Event: ev}
		data, err := sonic.MarshalString(env)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(content string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.journalQueue.EnqueueMessage(ctx, content, nil); err != nil {
				errCh <- err
			}
		}(data)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}
