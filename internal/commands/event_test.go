package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEventCmd_HasExpectedSubcommands(t *testing.T) {
	cmd := NewEventCmd()
	require.Equal(t, "event", cmd.Use)

	for _, name := range []string{"log", "list"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, sub.Name())
	}
}

func TestEventLogCmd_RequiresMessage(t *testing.T) {
	cmd := newEventLogCmd()
	require.NoError(t, cmd.Flags().Set("type", "note"))
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestEventLogCmd_RejectsInvalidType(t *testing.T) {
	cmd := newEventLogCmd()
	require.NoError(t, cmd.Flags().Set("type", "bogus"))
	require.NoError(t, cmd.Flags().Set("message", "hello"))
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestEventListCmd_RequiresTaskID(t *testing.T) {
	cmd := newEventListCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestEventListCmd_RejectsInvalidType(t *testing.T) {
	cmd := newEventListCmd()
	require.NoError(t, cmd.Flags().Set("task-id", "1"))
	require.NoError(t, cmd.Flags().Set("type", "bogus"))
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}
