package auditlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/reconcile"
)

func sampleEntry(runID string) Entry {
	return Entry{
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		RunID:     runID,
		Source:    "import",
		Input:     "chase.csv",
		Status:    StatusCommitted,
	}.FromResult(&reconcile.ExecuteResult{Created: 3, Updated: 1, Unchanged: 2, Skipped: 1, RulesApplied: 2})
}

func TestMarshalRoundTrip(t *testing.T) {
	e := sampleEntry("run_1")
	e.Error = `commit failed: "locked"`

	got, err := UnmarshalEntry(MarshalEntry(e))
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestUnmarshal_Errors(t *testing.T) {
	_, err := UnmarshalEntry([]string{"x"})
	assert.ErrorContains(t, err, "expected 12 fields")

	row := MarshalEntry(sampleEntry("run_1"))
	row[colTimestamp] = "yesterday"
	_, err = UnmarshalEntry(row)
	assert.ErrorContains(t, err, "parsing timestamp")

	row = MarshalEntry(sampleEntry("run_1"))
	row[colCreated] = "many"
	_, err = UnmarshalEntry(row)
	assert.ErrorContains(t, err, "parsing count")
}

func TestAppendAndRead(t *testing.T) {
	l := New(t.TempDir())

	entries, err := l.Read()
	require.NoError(t, err)
	assert.Nil(t, entries)

	require.NoError(t, l.Append(sampleEntry("run_1")))
	require.NoError(t, l.Append(sampleEntry("run_2"), sampleEntry("run_3")))

	entries, err = l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "run_1", entries[0].RunID)
	assert.Equal(t, 3, entries[0].Created)
	assert.Equal(t, 2, entries[0].RulesApplied)

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, Header, lines[0])
	assert.Len(t, lines, 4)
	assert.Equal(t, filepath.Join("logs", "reconcile-log.csv"), strings.TrimPrefix(l.Path(), l.root+string(filepath.Separator)))
}

func TestRecent(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, l.Append(sampleEntry("run_1"), sampleEntry("run_2"), sampleEntry("run_3")))

	recent, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "run_3", recent[0].RunID)
	assert.Equal(t, "run_2", recent[1].RunID)

	recent, err = l.Recent(10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestAppend_Concurrent(t *testing.T) {
	l := New(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Append(sampleEntry("run")))
		}()
	}
	wg.Wait()

	entries, err := l.Read()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
