package wiring_test

import (
	"context"
	"testing"

	"github.com/grindlemire/graft"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbuild/internal/app"
	_ "go.trai.ch/kbuild/internal/wiring"
)

// TestGraftDependencies checks that every node the CLI needs resolves.
func TestGraftDependencies(t *testing.T) {
	components, _, err := graft.ExecuteFor[*app.Components](context.Background())
	require.NoError(t, err)
	require.NotNil(t, components.App)
	require.NotNil(t, components.Logger)
}
