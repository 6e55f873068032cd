package board

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ChangeMessage is the payload published on the board notification channel
// after every successful store mutation.
type ChangeMessage struct {
	BoardID string `json:"boardId"`
}

// Subscribe listens for board change notifications and pushes fresh
// snapshots into the engine until ctx is cancelled. The store emission is
// a full replacement of the task collection; the engine never merges
// remote diffs incrementally.
func Subscribe(ctx context.Context, logger *log.Logger, rc *redis.Client, store Store, channel string, engine *Engine) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev ChangeMessage
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					logger.Errorf("unable to parse board update: %v", err)
					continue
				}
				if ev.BoardID != engine.BoardID() {
					continue
				}
				tasks, err := store.FetchTasks(ctx, ev.BoardID)
				if err != nil {
					logger.Errorf("fetch tasks: %v", err)
					continue
				}
				engine.ApplySnapshot(tasks)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
