package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionsLoadSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-metrics.md"), []byte("Revenue is in USD."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-naming.md"), []byte("Use snake_case columns."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("not loaded"), 0644))

	ins, err := NewInstructions(dir)
	require.NoError(t, err)

	text := ins.Text()
	assert.Equal(t, "Use snake_case columns.\n\nRevenue is in USD.", text)
	assert.NotContains(t, text, "not loaded")
}

func TestInstructionsMissingDir(t *testing.T) {
	ins, err := NewInstructions(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Equal(t, "", ins.Text())
}

func TestInstructionsHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.md")
	require.NoError(t, os.WriteFile(path, []byte("version one"), 0644))

	ins, err := NewInstructions(dir)
	require.NoError(t, err)
	require.Equal(t, "version one", ins.Text())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ins.Start(ctx))
	defer ins.Stop()

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0644))

	// Reload happens after the debounce window settles.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ins.Text() == "version two" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("instructions not reloaded, still %q", ins.Text())
}
