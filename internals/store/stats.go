package store

import (
	"context"

	"github.com/Oudwins/wocs/internals/schemas"
)

type Stats struct {
	Total    int
	ByStatus map[schemas.TaskStatus]int
	ByType   map[schemas.TaskType]int
}

// Stats counts tasks per status and per type. Every known status and type is
// present in the maps, zero when no task has it.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus: map[schemas.TaskStatus]int{},
		ByType:   map[schemas.TaskType]int{},
	}
	for _, status := range schemas.TaskStatuses {
		stats.ByStatus[status] = 0
	}
	for _, taskType := range schemas.TaskTypes {
		stats.ByType[taskType] = 0
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, type, COUNT(*) FROM tasks GROUP BY status, type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status schemas.TaskStatus
		var taskType schemas.TaskType
		var count int
		if err := rows.Scan(&status, &taskType, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[taskType] += count
	}
	return stats, rows.Err()
}
