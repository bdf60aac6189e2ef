package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
)

// RollbackData is returned on a successful rollback.
type RollbackData struct {
	Key      string `json:"key"`
	Restored string `json:"restored"`
	Version  int    `json:"version"`
}

// Rollback restores the value that the task's most recent config write
// replaced. The restore is itself a new config version.
func (e *Executor) Rollback(ctx context.Context, taskID, actor string) Result {
	entry, err := e.store.LastLogByAction(ctx, taskID, schemas.LogActionConfigUpdated)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failure("task %s has no config change to roll back", taskID)
		}
		return failure("read config history for %s: %v", taskID, err)
	}

	var change ConfigChange
	if err := json.Unmarshal([]byte(entry.DetailJSON), &change); err != nil || change.Key == "" {
		return failure("config change for %s is unreadable", taskID)
	}
	if change.Previous == nil {
		return failure("config %s had no previous value to restore", change.Key)
	}

	_, current, err := e.store.SetConfig(ctx, change.Key, *change.Previous, actor)
	if err != nil {
		return failure("restore config %s: %v", change.Key, err)
	}
	return success(fmt.Sprintf("Config %s restored (version %d)", change.Key, current.Version), RollbackData{
		Key:      change.Key,
		Restored: current.Value,
		Version:  current.Version,
	})
}
