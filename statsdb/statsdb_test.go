package statsdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"arachne/perfstats"
)

// openTemp builds an archiver over a throwaway file.
func openTemp(t *testing.T) *Archiver {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "sched.db"), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return a
}

// TestWriteRowAndQueryBack inserts one snapshot and reads the hot columns
// plus the JSON rendition back out.
func TestWriteRowAndQueryBack(t *testing.T) {
	a := openTemp(t)
	defer a.Close()

	snap := &perfstats.Stats{
		CollectionTime:       42,
		TotalCycles:          1000,
		IdleCycles:           300,
		WeightedLoadedCycles: 1400,
		ThreadsCreated:       9,
		ThreadsFinished:      4,
	}
	if err := a.writeRow(snap); err != nil {
		t.Fatalf("writeRow: %v", err)
	}

	var total, live int64
	var blob string
	err := a.db.QueryRow(
		"SELECT total_cycles, threads_live, snapshot FROM sched_stats").
		Scan(&total, &live, &blob)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1000 || live != 5 {
		t.Fatalf("hot columns = (%d, %d), want (1000, 5)", total, live)
	}

	var decoded perfstats.Stats
	if err := sonnet.Unmarshal([]byte(blob), &decoded); err != nil {
		t.Fatalf("snapshot column: %v", err)
	}
	if decoded != *snap {
		t.Fatalf("snapshot column mismatch: %+v", decoded)
	}
}

// TestLastCollectionTime: empty archive reports zero, populated archive
// reports the newest stamp.
func TestLastCollectionTime(t *testing.T) {
	a := openTemp(t)
	defer a.Close()

	ns, err := a.LastCollectionTime()
	if err != nil || ns != 0 {
		t.Fatalf("empty archive = (%d, %v), want (0, nil)", ns, err)
	}

	a.writeRow(&perfstats.Stats{CollectionTime: 10})
	a.writeRow(&perfstats.Stats{CollectionTime: 30})
	a.writeRow(&perfstats.Stats{CollectionTime: 20})

	ns, err = a.LastCollectionTime()
	if err != nil || ns != 30 {
		t.Fatalf("LastCollectionTime = (%d, %v), want (30, nil)", ns, err)
	}
}

// TestStartSamplesAndArchives runs the real sampler/writer pair briefly and
// expects at least one archived row.
func TestStartSamplesAndArchives(t *testing.T) {
	a := openTemp(t)
	a.Start()
	time.Sleep(100 * time.Millisecond)

	var rows int64
	// Count before Close so the WAL connection is still live.
	if err := a.db.QueryRow("SELECT COUNT(*) FROM sched_stats").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	a.Close()
	if rows == 0 {
		t.Fatal("archiver wrote no rows in 100 ms at a 10 ms cadence")
	}
}
