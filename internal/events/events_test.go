package events_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasta-kro/corvus-gateway/internal/events"
)

func openTestJournal(t *testing.T) *events.Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	journal, err := events.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })
	return journal
}

func TestAppendAndRecentRoundTrip(t *testing.T) {
	journal := openTestJournal(t)

	require.NoError(t, journal.Append("my-app", events.KindWarmUp, "started container abc123"))
	require.NoError(t, journal.Append("my-app", events.KindIdleEviction, "reaped after 15s idle"))
	require.NoError(t, journal.Append("other-app", events.KindWarmUp, "unrelated"))

	rows, err := journal.Recent("my-app")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, events.KindIdleEviction, rows[0].Kind, "newest event first")
	assert.Equal(t, "my-app", rows[0].AppName)
}

func TestRecentReturnsEmptyForUnknownApp(t *testing.T) {
	journal := openTestJournal(t)

	rows, err := journal.Recent("nobody-registered-this")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpenDropsPriorSchemaOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	first, err := events.Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Append("survivor", events.KindWarmUp, "should not survive restart"))
	require.NoError(t, first.Close())

	second, err := events.Open(path)
	require.NoError(t, err)
	defer second.Close()

	rows, err := second.Recent("survivor")
	require.NoError(t, err)
	assert.Empty(t, rows, "journal must not carry rows across a reopen")
}
