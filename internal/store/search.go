package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/intent-engine/ie/internal/models"
)

// SearchOptions controls search's shape.
type SearchOptions struct {
	IncludeTasks   bool
	IncludeEvents  bool
	Limit          int
	Offset         int
	SortByPriority bool
}

// DefaultSearchOptions includes both streams at 20 results per page.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{IncludeTasks: true, IncludeEvents: true, Limit: 20, Offset: 0}
}

// SearchHit is one merged result row: exactly one of Task or Event is set.
type SearchHit struct {
	Task     *models.Task   `json:"task,omitempty"`
	Event    *models.Event  `json:"event,omitempty"`
	Snippet  string         `json:"snippet"`
	Ancestry []*models.Task `json:"ancestry,omitempty"`
}

// SearchResults is the paginated return shape.
type SearchResults struct {
	Results     []SearchHit `json:"results"`
	TotalTasks  int         `json:"total_tasks"`
	TotalEvents int         `json:"total_events"`
	Limit       int         `json:"limit"`
	Offset      int         `json:"offset"`
	HasMore     bool        `json:"has_more"`
}

var hasSearchableChars = regexp.MustCompile(`[\p{L}\p{N}]`)

var statusKeywords = map[string]models.TaskStatus{
	"todo":  models.TaskStatusTodo,
	"doing": models.TaskStatusDoing,
	"done":  models.TaskStatusDone,
}

// Search runs full-text search over tasks and events. A query made solely
// of status keywords is treated as a status filter instead.
func Search(db *sql.DB, query string, opts SearchOptions) (*SearchResults, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	if statuses, ok := parseStatusFilterQuery(query); ok {
		return searchByStatus(db, statuses, opts)
	}

	if !hasSearchableChars.MatchString(query) {
		return &SearchResults{Results: []SearchHit{}, Limit: opts.Limit, Offset: opts.Offset}, nil
	}

	ftsQuery := escapeFTS5Query(query)

	// Pagination operates on the merged list (tasks first, then events),
	// so each stream is fetched from its start up to offset+limit rows and
	// the page is sliced out of the concatenation. Applying the caller's
	// offset per stream would skip rows whenever the stream totals differ.
	fetch := opts.Offset + opts.Limit

	var totalTasks, totalEvents int
	var merged []SearchHit

	if opts.IncludeTasks {
		taskHits, n, err := searchTasks(db, ftsQuery, fetch, opts.SortByPriority)
		if err != nil {
			return nil, fmt.Errorf("search tasks: %w", err)
		}
		totalTasks = n
		merged = append(merged, taskHits...)
	}
	if opts.IncludeEvents {
		eventHits, n, err := searchEvents(db, ftsQuery, fetch)
		if err != nil {
			return nil, fmt.Errorf("search events: %w", err)
		}
		totalEvents = n
		merged = append(merged, eventHits...)
	}

	lo := opts.Offset
	if lo > len(merged) {
		lo = len(merged)
	}
	hi := lo + opts.Limit
	if hi > len(merged) {
		hi = len(merged)
	}
	hits := merged[lo:hi]
	if hits == nil {
		hits = []SearchHit{}
	}

	return &SearchResults{
		Results:     hits,
		TotalTasks:  totalTasks,
		TotalEvents: totalEvents,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
		HasMore:     (totalTasks + totalEvents) > (opts.Offset + opts.Limit),
	}, nil
}

// parseStatusFilterQuery recognizes a query made solely of status keywords.
func parseStatusFilterQuery(query string) ([]models.TaskStatus, bool) {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return nil, false
	}
	var statuses []models.TaskStatus
	for _, f := range fields {
		s, ok := statusKeywords[f]
		if !ok {
			return nil, false
		}
		statuses = append(statuses, s)
	}
	return statuses, true
}

func searchByStatus(db *sql.DB, statuses []models.TaskStatus, opts SearchOptions) (*SearchResults, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	orderBy := "id ASC"
	if opts.SortByPriority {
		orderBy = "priority IS NULL, priority ASC, id ASC"
	}
	rows, err := db.Query(`SELECT `+taskColumns+` FROM tasks WHERE status IN (`+placeholders+`) ORDER BY `+orderBy+` LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, err
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE status IN (`+placeholders+`)`, args...).Scan(&total); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, len(tasks))
	for i, t := range tasks {
		hits[i] = SearchHit{Task: t, Snippet: t.Name}
	}

	return &SearchResults{
		Results:     hits,
		TotalTasks:  total,
		TotalEvents: 0,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
		HasMore:     total > (opts.Offset + opts.Limit),
	}, nil
}

// searchTasks returns the first fetch task hits by rank, plus the stream's
// total match count.
func searchTasks(db *sql.DB, ftsQuery string, fetch int, sortByPriority bool) ([]SearchHit, int, error) {
	orderBy := "rank, t.id"
	if sortByPriority {
		orderBy = "rank, t.priority IS NULL, t.priority ASC, t.id"
	}
	rows, err := db.Query(`
		SELECT t.id, t.name, t.spec, t.status, t.priority, t.complexity, t.parent_id, t.owner,
		       t.active_form, t.first_todo_at, t.first_doing_at, t.first_done_at, t.created_at, t.updated_at,
		       snippet(tasks_fts, -1, '**', '**', '...', 15) as snip
		FROM tasks_fts
		JOIN tasks t ON t.id = tasks_fts.rowid
		WHERE tasks_fts MATCH ?
		ORDER BY `+orderBy+`
		LIMIT ?
	`, ftsQuery, fetch)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var s taskScanner
		var snip string
		if err := rows.Scan(
			&s.task.ID, &s.task.Name, &s.spec, &s.task.Status, &s.priority, &s.complexity,
			&s.parentID, &s.task.Owner, &s.activeForm, &s.firstTodoAt, &s.firstDoingAt, &s.firstDoneAt,
			&s.task.CreatedAt, &s.task.UpdatedAt, &snip,
		); err != nil {
			return nil, 0, err
		}
		hits = append(hits, SearchHit{Task: s.hydrate(), Snippet: snip})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tasks_fts WHERE tasks_fts MATCH ?`, ftsQuery).Scan(&total); err != nil {
		return nil, 0, err
	}
	return hits, total, nil
}

// searchEvents returns the first fetch event hits by rank, plus the
// stream's total match count.
func searchEvents(db *sql.DB, ftsQuery string, fetch int) ([]SearchHit, int, error) {
	rows, err := db.Query(`
		SELECT e.id, e.task_id, e.timestamp, e.log_type, e.discussion_data,
		       snippet(events_fts, -1, '**', '**', '...', 15) as snip
		FROM events_fts
		JOIN events e ON e.id = events_fts.rowid
		WHERE events_fts MATCH ?
		ORDER BY rank, e.id
		LIMIT ?
	`, ftsQuery, fetch)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var e models.Event
		var snip string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Timestamp, &e.Kind, &e.DiscussionData, &snip); err != nil {
			return nil, 0, err
		}
		hits = append(hits, SearchHit{Event: &e, Snippet: snip})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	_ = rows.Close()

	// Ancestry is looked up only after rows is closed: the store runs on a
	// single connection, which an open rows would still be holding.
	for i := range hits {
		ancestry, err := GetAncestry(db, hits[i].Event.TaskID)
		if err != nil {
			return nil, 0, err
		}
		hits[i].Ancestry = ancestry
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM events_fts WHERE events_fts MATCH ?`, ftsQuery).Scan(&total); err != nil {
		return nil, 0, err
	}
	return hits, total, nil
}

// escapeFTS5Query quotes each token so FTS5 metacharacters (", *, :, etc.)
// are treated as literals, unless the query already uses FTS5 advanced
// syntax (detected heuristically by the presence of a bare NEAR/AND/OR/NOT
// operator or a column filter, in which case it's passed through verbatim).
func escapeFTS5Query(query string) string {
	upper := strings.ToUpper(query)
	for _, op := range []string{" AND ", " OR ", " NOT ", "NEAR(", ":"} {
		if strings.Contains(upper, op) {
			return query
		}
	}
	fields := strings.Fields(query)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}
