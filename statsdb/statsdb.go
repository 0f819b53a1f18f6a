// ════════════════════════════════════════════════════════════════════════════════════════════════
// Scheduler Statistics Archiver
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SQLite persistence for scheduler performance snapshots
//
// Description:
//   Optional observability sink enabled by --statsFile. A sampler collects
//   aggregate scheduler counters on a fixed cadence and hands them through a
//   lock-free SPSC ring to a writer goroutine, which inserts them into a
//   SQLite file one row at a time. Hot values (cycle counters, live threads)
//   get their own columns, with an index on the collection timestamp; the
//   full snapshot rides along as a JSON column.
//
// Failure policy:
//   Telemetry never throttles the scheduler: a full ring drops the sample, a
//   failed insert logs once and carries on.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package statsdb

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"arachne/debug"
	"arachne/perfstats"
	"arachne/ring"
)

// ringCapacity buffers samples between the writer's drain passes.
const ringCapacity = 256

const schema = `
CREATE TABLE IF NOT EXISTS sched_stats (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	collected_ns   INTEGER NOT NULL,
	total_cycles   INTEGER NOT NULL,
	idle_cycles    INTEGER NOT NULL,
	weighted_cycles INTEGER NOT NULL,
	threads_live   INTEGER NOT NULL,
	snapshot       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sched_stats_collected ON sched_stats(collected_ns);
`

// Archiver owns the sampler, the ring and the SQLite writer.
type Archiver struct {
	db       *sql.DB
	insert   *sql.Stmt
	buf      *ring.Ring
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// Open prepares the archive file and the insert path. interval is the
// sampling cadence.
func Open(path string, interval time.Duration) (*Archiver, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// WAL keeps the writer from stalling readers poking at the file live.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	insert, err := db.Prepare(
		"INSERT INTO sched_stats (collected_ns, total_cycles, idle_cycles, weighted_cycles, threads_live, snapshot) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Archiver{
		db:       db,
		insert:   insert,
		buf:      ring.New(ringCapacity),
		interval: interval,
	}, nil
}

// Start launches the sampler and writer goroutines.
func (a *Archiver) Start() {
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.sampleLoop()
	go a.writeLoop()
}

// sampleLoop collects one aggregate snapshot per interval and pushes it into
// the ring. Drops are silent by design.
func (a *Archiver) sampleLoop() {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			snap := perfstats.CollectStats()
			a.buf.Push(&snap)
		}
	}
}

// writeLoop drains the ring into the archive until stopped, then flushes the
// remainder.
func (a *Archiver) writeLoop() {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			a.drain()
			return
		case <-ticker.C:
			a.drain()
		}
	}
}

// drain writes every queued snapshot.
func (a *Archiver) drain() {
	for {
		snap := a.buf.Pop()
		if snap == nil {
			return
		}
		if err := a.writeRow(snap); err != nil {
			debug.DropError("STATSDB_INSERT", err)
			return
		}
	}
}

// writeRow inserts one snapshot row with its JSON rendition.
func (a *Archiver) writeRow(s *perfstats.Stats) error {
	blob, err := sonnet.Marshal(s)
	if err != nil {
		return err
	}
	_, err = a.insert.Exec(
		int64(s.CollectionTime),
		int64(s.TotalCycles),
		int64(s.IdleCycles),
		int64(s.WeightedLoadedCycles),
		int64(s.ThreadsCreated-s.ThreadsFinished),
		string(blob),
	)
	return err
}

// LastCollectionTime returns the newest archived timestamp, 0 for an empty
// archive. Lets an operator correlate a restart with the previous run.
func (a *Archiver) LastCollectionTime() (uint64, error) {
	var ns sql.NullInt64
	err := a.db.QueryRow("SELECT MAX(collected_ns) FROM sched_stats").Scan(&ns)
	if err != nil {
		return 0, err
	}
	if !ns.Valid {
		return 0, nil
	}
	return uint64(ns.Int64), nil
}

// Close stops both loops, flushes, and closes the archive.
func (a *Archiver) Close() error {
	if a.stop != nil {
		close(a.stop)
		<-a.done
		a.stop, a.done = nil, nil
	}
	a.insert.Close()
	return a.db.Close()
}
