package commands

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intent-engine/ie/internal/app"
)

// withTempProject points store resolution at a fresh temp directory for
// the duration of the test.
func withTempProject(t *testing.T) {
	t.Helper()
	root := t.TempDir()
	t.Setenv(app.ProjectEnvOverride, root)
	t.Setenv("IE_DISABLE_DASHBOARD_NOTIFICATIONS", "1")
	app.SetDBPathOverride("")
	t.Cleanup(func() { app.SetDBPathOverride("") })
}

func TestInitCmd_CreatesStoreIdempotently(t *testing.T) {
	withTempProject(t)

	cmd := NewInitCmd()
	require.NoError(t, cmd.RunE(cmd, nil))
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestTaskLifecycle_CreateStartDone(t *testing.T) {
	withTempProject(t)

	create := newTaskCreateCmd()
	require.NoError(t, create.Flags().Set("name", "write the docs"))
	require.NoError(t, create.RunE(create, nil))

	list := newTaskListCmd()
	require.NoError(t, list.RunE(list, nil))

	start := newTaskStartCmd()
	require.NoError(t, start.Flags().Set("id", "1"))
	require.NoError(t, start.RunE(start, nil))

	done := newTaskDoneCmd()
	require.NoError(t, done.RunE(done, nil))
}

func TestEventLog_AttachesToExplicitTask(t *testing.T) {
	withTempProject(t)

	create := newTaskCreateCmd()
	require.NoError(t, create.Flags().Set("name", "research spike"))
	require.NoError(t, create.RunE(create, nil))

	logCmd := newEventLogCmd()
	require.NoError(t, logCmd.Flags().Set("type", "note"))
	require.NoError(t, logCmd.Flags().Set("message", "kicked off"))
	require.NoError(t, logCmd.Flags().Set("task-id", "1"))
	require.NoError(t, logCmd.RunE(logCmd, nil))

	listCmd := newEventListCmd()
	require.NoError(t, listCmd.Flags().Set("task-id", "1"))
	require.NoError(t, listCmd.RunE(listCmd, nil))
}

func initStore(t *testing.T) {
	t.Helper()
	cmd := NewInitCmd()
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestSearchCmd_RunsAgainstEmptyStore(t *testing.T) {
	withTempProject(t)
	initStore(t)

	cmd := NewSearchCmd()
	require.NoError(t, cmd.RunE(cmd, []string{"todo"}))
}

func TestSearchCmd_ReadBeforeInitFails(t *testing.T) {
	withTempProject(t)

	cmd := NewSearchCmd()
	err := cmd.RunE(cmd, []string{"todo"})
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestStatusCmd_RunsWithNoFocus(t *testing.T) {
	withTempProject(t)
	initStore(t)

	cmd := NewStatusCmd()
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestDoctorCmd_ReportsHealthyOnFreshStore(t *testing.T) {
	withTempProject(t)
	initStore(t)

	cmd := NewDoctorCmd()
	require.NoError(t, cmd.RunE(cmd, nil))
}

func TestDoctorCmd_ChecksRespectGCFlag(t *testing.T) {
	withTempProject(t)
	initStore(t)

	cmd := NewDoctorCmd()
	require.NoError(t, cmd.Flags().Set("gc", "true"))
	require.NoError(t, cmd.RunE(cmd, nil))
}
