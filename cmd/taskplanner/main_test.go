package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/config"
	"task-planner/internal/model"
	"task-planner/internal/repository"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "parse", "--tz", "America/New_York", "--now", "2025-06-15T16:00:00Z", "tomorrow", "at", "9am")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-06-16T13:00:00Z")
	assert.Contains(t, out, "in 21h0m0s")

	_, err = run(t, "parse", "--strict", "--now", "2025-06-15T16:00:00Z", "next", "blue", "moon")
	assert.ErrorContains(t, err, "cannot parse")

	_, err = run(t, "parse", "--tz", "Nowhere/Land", "5m")
	assert.Error(t, err)
}

func TestRemindersCommand(t *testing.T) {
	dir := t.TempDir()
	for _, key := range []string{"PLANNER_CONFIG", "MAX_TASKS", "DEFAULT_TIMEZONE", "EPHEMERAL_TTL_SECONDS", "DIGEST_TIME"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("FILE_STORE_DIR", dir)

	ctx := context.Background()
	cfg, err := config.Load()
	require.NoError(t, err)
	store, err := openStore(ctx, cfg)
	require.NoError(t, err)

	repo := repository.NewReminderRepository(store)
	future := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	past := time.Now().Add(-time.Hour).Truncate(time.Second).UTC()
	for _, r := range []model.Reminder{
		{ReminderID: model.ReminderID(1001, 1, future), OwnerID: 1001, TaskID: 1, FireAt: future},
		{ReminderID: model.ReminderID(2002, 4, past), OwnerID: 2002, TaskID: 4, FireAt: past},
	} {
		require.NoError(t, repo.Save(ctx, r))
	}
	require.NoError(t, store.Close())

	out, err := run(t, "reminders")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, out, model.ReminderID(1001, 1, future))
	assert.Contains(t, out, "expired")

	out, err = run(t, "reminders", "--owner", "1001")
	require.NoError(t, err)
	assert.NotContains(t, out, "expired")
}
