package pendingqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/clusterq/claimresolver/internal/model"
)

// pendingListKeyPrefix, followed by the scheduler ID, names the Redis list
// workers poll with BLPOP. One key per
// scheduler keeps a noisy scheduler's retries from head-of-line blocking
// another's.
const pendingListKeyPrefix = "resolver:pending:"

type pendingMessage struct {
	TaskID string `json:"taskId"`
	RunID  int    `json:"runId"`
}

// RedisPendingQueue pushes a JSON-encoded pending message onto a per-
// scheduler Redis list, matching the FIFO-queue-as-list idiom used
// elsewhere in the retrieved pack's Redis-backed queues.
type RedisPendingQueue struct {
	rdb *redis.Client
}

func NewRedisPendingQueue(rdb *redis.Client) *RedisPendingQueue {
	return &RedisPendingQueue{rdb: rdb}
}

func (q *RedisPendingQueue) PutPendingMessage(ctx context.Context, task *model.Task, runID int) error {
	payload, err := json.Marshal(pendingMessage{TaskID: task.TaskID, RunID: runID})
	if err != nil {
		return fmt.Errorf("put pending message for %s/%d: %w", task.TaskID, runID, err)
	}

	key := pendingListKeyPrefix + task.SchedulerID
	if err := q.rdb.RPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("put pending message for %s/%d: %w", task.TaskID, runID, err)
	}
	return nil
}
