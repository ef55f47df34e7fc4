package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intent-engine/ie/internal/models"
)

func TestSearch_CommittedWriteIsImmediatelySearchable(t *testing.T) {
	db := newTestStore(t)
	task, err := CreateTask(db, "implement oauth flow", "token refresh handling", nil, models.OwnerAI)
	require.NoError(t, err)

	results, err := Search(db, "oauth", DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, 1, results.TotalTasks)
	require.Len(t, results.Results, 1)
	require.Equal(t, task.ID, results.Results[0].Task.ID)
	require.Contains(t, results.Results[0].Snippet, "**oauth**")
}

func TestSearch_EventHitsCarryAncestry(t *testing.T) {
	db := newTestStore(t)
	root, err := CreateTask(db, "root", "", nil, models.OwnerAI)
	require.NoError(t, err)
	child, err := CreateTask(db, "child", "", &root.ID, models.OwnerAI)
	require.NoError(t, err)
	_, err = AppendEvent(db, &child.ID, models.EventKindDecision, "switched to websockets")
	require.NoError(t, err)

	results, err := Search(db, "websockets", DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, 1, results.TotalEvents)
	require.Len(t, results.Results, 1)
	hit := results.Results[0]
	require.NotNil(t, hit.Event)
	require.Len(t, hit.Ancestry, 2)
	require.Equal(t, root.ID, hit.Ancestry[0].ID)
}

func TestSearch_NonWordQueryReturnsEmpty(t *testing.T) {
	db := newTestStore(t)
	_, err := CreateTask(db, "something", "", nil, models.OwnerAI)
	require.NoError(t, err)

	results, err := Search(db, "!!! ???", DefaultSearchOptions())
	require.NoError(t, err)
	require.Empty(t, results.Results)
	require.Zero(t, results.TotalTasks)
	require.Zero(t, results.TotalEvents)
	require.False(t, results.HasMore)
}

func TestSearch_MetacharactersTreatedAsLiterals(t *testing.T) {
	db := newTestStore(t)
	_, err := CreateTask(db, `quote "handling" work`, "", nil, models.OwnerAI)
	require.NoError(t, err)

	results, err := Search(db, `"handling"`, DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, 1, results.TotalTasks)
}

func TestSearch_StatusFilterMode(t *testing.T) {
	db := newTestStore(t)
	a, err := CreateTask(db, "alpha", "spec", nil, models.OwnerAI)
	require.NoError(t, err)
	_, err = CreateTask(db, "beta", "", nil, models.OwnerAI)
	require.NoError(t, err)
	_, err = StartTask(db, a.ID)
	require.NoError(t, err)

	results, err := Search(db, "doing", DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, 1, results.TotalTasks)
	require.Equal(t, a.ID, results.Results[0].Task.ID)

	both, err := Search(db, "todo doing", DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, 2, both.TotalTasks)
}

func TestSearch_PaginationCoversAllHitsWithoutOverlap(t *testing.T) {
	db := newTestStore(t)
	for i := 0; i < 50; i++ {
		_, err := CreateTask(db, fmt.Sprintf("auth work item %02d", i), "auth related", nil, models.OwnerAI)
		require.NoError(t, err)
	}

	opts := DefaultSearchOptions()
	opts.IncludeEvents = false

	seen := map[int64]bool{}
	for _, offset := range []int{0, 20, 40} {
		opts.Offset = offset
		page, err := Search(db, "auth", opts)
		require.NoError(t, err)
		require.Equal(t, 50, page.TotalTasks)
		require.NotEmpty(t, page.Results)
		if offset < 40 {
			require.Len(t, page.Results, 20)
			require.True(t, page.HasMore)
		} else {
			require.Len(t, page.Results, 10)
			require.False(t, page.HasMore)
		}
		for _, hit := range page.Results {
			require.False(t, seen[hit.Task.ID], "task %d returned on two pages", hit.Task.ID)
			seen[hit.Task.ID] = true
		}
	}
	require.Len(t, seen, 50)
}

func TestSearch_PaginationCoversBothStreams(t *testing.T) {
	db := newTestStore(t)
	for i := 0; i < 15; i++ {
		_, err := CreateTask(db, fmt.Sprintf("deploy step %02d", i), "", nil, models.OwnerAI)
		require.NoError(t, err)
	}
	host, err := CreateTask(db, "log host", "", nil, models.OwnerAI)
	require.NoError(t, err)
	for i := 0; i < 15; i++ {
		_, err := AppendEvent(db, &host.ID, models.EventKindNote, fmt.Sprintf("deploy note %02d", i))
		require.NoError(t, err)
	}

	opts := DefaultSearchOptions()

	seenTasks := map[int64]bool{}
	seenEvents := map[int64]bool{}
	for _, offset := range []int{0, 20} {
		opts.Offset = offset
		page, err := Search(db, "deploy", opts)
		require.NoError(t, err)
		require.Equal(t, 15, page.TotalTasks)
		require.Equal(t, 15, page.TotalEvents)
		for _, hit := range page.Results {
			if hit.Task != nil {
				require.False(t, seenTasks[hit.Task.ID])
				seenTasks[hit.Task.ID] = true
			} else {
				require.False(t, seenEvents[hit.Event.ID])
				seenEvents[hit.Event.ID] = true
			}
		}
		if offset == 0 {
			require.Len(t, page.Results, 20)
			require.True(t, page.HasMore)
		} else {
			require.Len(t, page.Results, 10)
			require.False(t, page.HasMore)
		}
	}
	require.Len(t, seenTasks, 15)
	require.Len(t, seenEvents, 15)
}

func TestEscapeFTS5Query(t *testing.T) {
	require.Equal(t, `"jwt" "token"`, escapeFTS5Query("jwt token"))
	require.Equal(t, `"say" """hi"""`, escapeFTS5Query(`say "hi"`))
	// Advanced syntax passes through untouched.
	require.Equal(t, "jwt AND token", escapeFTS5Query("jwt AND token"))
	require.Equal(t, "name:jwt", escapeFTS5Query("name:jwt"))
}
