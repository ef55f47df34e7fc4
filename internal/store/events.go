package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/intent-engine/ie/internal/models"
)

// AppendEvent records an immutable event against taskID, or the current
// focused task if taskID is nil. Fails with NoCurrentTask if
// neither is available.
func AppendEvent(db *sql.DB, taskID *int64, kind models.EventKind, markdown string) (*models.Event, error) {
	var event *models.Event
	err := Transact(db, func(tx *sql.Tx) error {
		id := taskID
		if id == nil {
			current, err := GetCurrentTaskID(tx)
			if err != nil {
				return err
			}
			if current == nil {
				return models.NewNoCurrentTask()
			}
			id = current
		}

		if _, err := getTaskTx(tx, *id); err != nil {
			return err
		}

		if err := validateMarkdown(markdown); err != nil {
			return models.NewPlanValidationError("discussion_data is not valid markdown", map[string]string{"task_id": fmt.Sprint(*id)})
		}

		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO events (task_id, timestamp, log_type, discussion_data)
			VALUES (?, CURRENT_TIMESTAMP, ?, ?)
		`, *id, string(kind), markdown)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		eid, err := res.LastInsertId()
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(context.Background(), `
			SELECT id, task_id, timestamp, log_type, discussion_data FROM events WHERE id = ?
		`, eid)
		event, err = scanEventRow(row)
		return err
	})
	return event, err
}

func scanEventRow(row interface{ Scan(dest ...any) error }) (*models.Event, error) {
	var e models.Event
	if err := row.Scan(&e.ID, &e.TaskID, &e.Timestamp, &e.Kind, &e.DiscussionData); err != nil {
		return nil, err
	}
	return &e, nil
}

// EventListFilter narrows ListEvents.
type EventListFilter struct {
	Kind  *models.EventKind
	Since string // relative duration ("24h", "7d") or an RFC3339 instant
	Limit int
}

// ListEvents returns events for taskID, most-recent-first.
func ListEvents(db *sql.DB, taskID int64, f EventListFilter) ([]*models.Event, error) {
	query := `SELECT id, task_id, timestamp, log_type, discussion_data FROM events WHERE task_id = ?`
	args := []any{taskID}

	if f.Kind != nil {
		query += ` AND log_type = ?`
		args = append(args, string(*f.Kind))
	}
	if f.Since != "" {
		since, err := parseSince(f.Since)
		if err != nil {
			return nil, models.NewPlanValidationError("invalid since value: "+err.Error(), nil)
		}
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}

	query += ` ORDER BY timestamp DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// parseSince accepts a Go duration ("24h", "7d" via a day-unit extension) or
// an RFC3339 absolute instant, returning the cutoff instant.
func parseSince(since string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, since); err == nil {
		return t, nil
	}
	if strings.HasSuffix(since, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(since, "d"))
		if err != nil {
			return time.Time{}, err
		}
		return time.Now().Add(-time.Duration(n) * 24 * time.Hour), nil
	}
	d, err := time.ParseDuration(since)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(-d), nil
}
