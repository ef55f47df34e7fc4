package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTaskCmd_HasExpectedSubcommands(t *testing.T) {
	cmd := NewTaskCmd()
	require.Equal(t, "task", cmd.Use)

	for _, name := range []string{
		"create", "get", "ancestry", "subtree", "find", "list", "update",
		"delete", "start", "done", "spawn-subtask", "switch", "pick-next",
		"add-dep", "remove-dep",
	} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, sub.Name())
	}
}

func TestTaskCreateCmd_RequiresName(t *testing.T) {
	cmd := newTaskCreateCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskGetCmd_RequiresID(t *testing.T) {
	cmd := newTaskGetCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskAncestryCmd_RequiresID(t *testing.T) {
	cmd := newTaskAncestryCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskUpdateCmd_RequiresID(t *testing.T) {
	cmd := newTaskUpdateCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskUpdateCmd_RejectsInvalidStatus(t *testing.T) {
	cmd := newTaskUpdateCmd()
	require.NoError(t, cmd.Flags().Set("id", "1"))
	require.NoError(t, cmd.Flags().Set("status", "bogus"))
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskFindCmd_RejectsInvalidStatus(t *testing.T) {
	cmd := newTaskFindCmd()
	require.NoError(t, cmd.Flags().Set("status", "bogus"))
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskSpawnSubtaskCmd_RequiresName(t *testing.T) {
	cmd := newTaskSpawnSubtaskCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskSwitchCmd_RequiresID(t *testing.T) {
	cmd := newTaskSwitchCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskAddDepCmd_RequiresBothIDs(t *testing.T) {
	cmd := newTaskAddDepCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)

	require.NoError(t, cmd.Flags().Set("id", "1"))
	err = cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestRequiredInt64Flag_ErrorsWhenUnset(t *testing.T) {
	cmd := newTaskGetCmd()
	_, err := requiredInt64Flag(cmd.Flags(), "id")
	require.Error(t, err)
}

func TestRequiredInt64Flag_ReturnsValueWhenSet(t *testing.T) {
	cmd := newTaskGetCmd()
	require.NoError(t, cmd.Flags().Set("id", "42"))
	v, err := requiredInt64Flag(cmd.Flags(), "id")
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestOptionalInt64Flag(t *testing.T) {
	cmd := newTaskCreateCmd()
	require.Nil(t, optionalInt64Flag(cmd.Flags(), "parent-id"))
	require.NoError(t, cmd.Flags().Set("parent-id", "7"))
	v := optionalInt64Flag(cmd.Flags(), "parent-id")
	require.NotNil(t, v)
	require.Equal(t, int64(7), *v)
}
