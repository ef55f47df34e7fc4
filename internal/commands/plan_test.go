package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewPlanCmd reads its document from os.Stdin, which we can't easily mock
// in unit tests, so this only checks the command's shape. The reconciler
// itself is covered by the planner package's tests.
func TestNewPlanCmd_Shape(t *testing.T) {
	cmd := NewPlanCmd()
	require.Equal(t, "plan", cmd.Use)
	require.Equal(t, "true", cmd.Annotations["mutates"])
}
