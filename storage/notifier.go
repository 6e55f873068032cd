package storage

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Notifier publishes board change notifications so every running instance
// refreshes its snapshot after a write.
type Notifier struct {
	redis   *redis.Client
	channel string
}

// NewNotifier creates a notifier publishing on the given channel.
func NewNotifier(client *redis.Client, channel string) *Notifier {
	return &Notifier{redis: client, channel: channel}
}

type changeMessage struct {
	BoardID string `json:"boardId"`
}

// BoardChanged announces that the given board's task collection changed.
func (n *Notifier) BoardChanged(ctx context.Context, boardID string) error {
	payload, err := sonic.Marshal(changeMessage{BoardID: boardID})
	if err != nil {
		return err
	}
	return n.redis.Publish(ctx, n.channel, payload).Err()
}

// Notifying wraps a backend and announces every successful mutation. A
// failed announcement is logged and otherwise dropped; subscribers fall
// back to the periodic snapshot on reconnect.
type Notifying struct {
	base     backend
	notifier *Notifier
	logger   *log.Logger
}

// NewNotifying creates the notifying decorator.
func NewNotifying(base backend, notifier *Notifier, logger *log.Logger) *Notifying {
	if base == nil {
		panic("storage.NewNotifying: base storage is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifying{base: base, notifier: notifier, logger: logger}
}

func (n *Notifying) FetchTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	return n.base.FetchTasks(ctx, boardID)
}

func (n *Notifying) CreateTask(ctx context.Context, boardID string, t domain.Task) (string, error) {
	id, err := n.base.CreateTask(ctx, boardID, t)
	if err != nil {
		return "", err
	}
	n.announce(ctx, boardID)
	return id, nil
}

func (n *Notifying) UpdateTaskFields(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) error {
	if err := n.base.UpdateTaskFields(ctx, boardID, taskID, patch); err != nil {
		return err
	}
	n.announce(ctx, boardID)
	return nil
}

func (n *Notifying) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if err := n.base.DeleteTask(ctx, boardID, taskID); err != nil {
		return err
	}
	n.announce(ctx, boardID)
	return nil
}

func (n *Notifying) announce(ctx context.Context, boardID string) {
	if n.notifier == nil {
		return
	}
	if err := n.notifier.BoardChanged(ctx, boardID); err != nil {
		n.logger.Errorf("announce board change: %v", err)
	}
}
