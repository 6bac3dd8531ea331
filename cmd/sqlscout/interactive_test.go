package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlscout/internal/dataset"
	"sqlscout/internal/memory"
)

func testApp() *app {
	return &app{
		registry: dataset.NewRegistry(),
		store:    memory.NewStore(10),
	}
}

func TestHandleCommandQuit(t *testing.T) {
	a := testApp()
	session, ds, tenant := "s1", "sales", 1

	for _, cmd := range []string{"/quit", "/exit", "/q"} {
		quit, err := handleCommand(a, cmd, &session, &ds, &tenant)
		require.NoError(t, err)
		assert.True(t, quit)
	}
}

func TestHandleCommandDataset(t *testing.T) {
	a := testApp()
	session, ds, tenant := "s1", "sales", 1

	quit, err := handleCommand(a, "/dataset market_size", &session, &ds, &tenant)
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, "market_size", ds)

	_, err = handleCommand(a, "/dataset nope", &session, &ds, &tenant)
	assert.Error(t, err)
	assert.Equal(t, "market_size", ds, "failed switch must not change the active dataset")
}

func TestHandleCommandTenant(t *testing.T) {
	a := testApp()
	session, ds, tenant := "s1", "sales", 1

	_, err := handleCommand(a, "/tenant 7", &session, &ds, &tenant)
	require.NoError(t, err)
	assert.Equal(t, 7, tenant)

	_, err = handleCommand(a, "/tenant abc", &session, &ds, &tenant)
	assert.Error(t, err)
	assert.Equal(t, 7, tenant)
}

func TestHandleCommandClearRotatesSession(t *testing.T) {
	a := testApp()
	session, ds, tenant := "s1", "sales", 1
	a.store.Append("s1", memory.Entry{UserQuery: "q"})

	_, err := handleCommand(a, "/clear", &session, &ds, &tenant)
	require.NoError(t, err)
	assert.NotEqual(t, "s1", session)
	assert.Empty(t, a.store.History("s1"))
}

func TestHandleCommandUnknown(t *testing.T) {
	a := testApp()
	session, ds, tenant := "s1", "sales", 1

	_, err := handleCommand(a, "/bogus", &session, &ds, &tenant)
	assert.Error(t, err)
}
