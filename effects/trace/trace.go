// Package trace records what a loop did, pass by pass, in an in-memory
// database that tests and tools can query.
package trace

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/rickb777/date/v2/timespan"
	"gopkg.in/yaml.v3"

	"github.com/on-the-ground/effect_ive_loop/effects"
)

const (
	tableEvent = "event"
	tablePass  = "pass"
)

// Record is one stored loop event.
type Record struct {
	Seq      uint64    `yaml:"seq"`
	Kind     string    `yaml:"kind"`
	Pass     uint64    `yaml:"pass"`
	Key      string    `yaml:"key,omitempty"`
	Instance string    `yaml:"instance,omitempty"`
	At       time.Time `yaml:"at"`
}

// Pass is the wall-clock span of one reconciliation pass.
type Pass struct {
	Number uint64
	Span   timespan.TimeSpan
}

type passRow struct {
	Number uint64
	Begin  time.Time
	End    time.Time
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableEvent: {
			Name: tableEvent,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.UintFieldIndex{Field: "Seq"},
				},
				"key": {
					Name:         "key",
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Key"},
				},
				"pass": {
					Name:    "pass",
					Indexer: &memdb.UintFieldIndex{Field: "Pass"},
				},
				"kind": {
					Name:    "kind",
					Indexer: &memdb.StringFieldIndex{Field: "Kind"},
				},
			},
		},
		tablePass: {
			Name: tablePass,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.UintFieldIndex{Field: "Number"},
				},
			},
		},
	},
}

// Recorder is an effects.Observer storing every event it sees.
type Recorder struct {
	db  *memdb.MemDB
	seq atomic.Uint64

	mu  sync.Mutex
	err error
}

var _ effects.Observer = (*Recorder)(nil)

func NewRecorder() (*Recorder, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace db: %w", err)
	}
	return &Recorder{db: db}, nil
}

func (r *Recorder) Observe(e effects.Event) {
	rec := &Record{
		Seq:  r.seq.Add(1),
		Kind: string(e.Kind),
		Pass: e.Pass,
		Key:  string(e.Key),
		At:   e.At,
	}
	if e.Instance != uuid.Nil {
		rec.Instance = e.Instance.String()
	}

	txn := r.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableEvent, rec); err != nil {
		r.setErr(err)
		return
	}
	if err := r.recordPass(txn, e); err != nil {
		r.setErr(err)
		return
	}
	txn.Commit()
}

func (r *Recorder) recordPass(txn *memdb.Txn, e effects.Event) error {
	switch e.Kind {
	case effects.EventPassBegin:
		return txn.Insert(tablePass, &passRow{Number: e.Pass, Begin: e.At, End: e.At})
	case effects.EventPassEnd:
		raw, err := txn.First(tablePass, "id", e.Pass)
		if err != nil {
			return err
		}
		row := passRow{Number: e.Pass, Begin: e.At}
		if prev, ok := raw.(*passRow); ok {
			row.Begin = prev.Begin
		}
		row.End = e.At
		return txn.Insert(tablePass, &row)
	default:
		return nil
	}
}

func (r *Recorder) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first error met while storing events.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Events returns every record in the order it was observed.
func (r *Recorder) Events() []Record {
	return r.query(tableEvent, "id")
}

func (r *Recorder) ByKey(key effects.Key) []Record {
	return r.query(tableEvent, "key", string(key))
}

func (r *Recorder) ByPass(pass uint64) []Record {
	return r.query(tableEvent, "pass", pass)
}

// Count returns how many events of kind were recorded for key.
func (r *Recorder) Count(kind effects.EventKind, key effects.Key) int {
	n := 0
	for _, rec := range r.ByKey(key) {
		if rec.Kind == string(kind) {
			n++
		}
	}
	return n
}

// CountKind returns how many events of kind were recorded.
func (r *Recorder) CountKind(kind effects.EventKind) int {
	return len(r.query(tableEvent, "kind", string(kind)))
}

// Passes returns every pass seen so far, in order.
func (r *Recorder) Passes() []Pass {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tablePass, "id")
	if err != nil {
		r.setErr(err)
		return nil
	}
	var out []Pass
	for raw := it.Next(); raw != nil; raw = it.Next() {
		row := raw.(*passRow)
		out = append(out, Pass{
			Number: row.Number,
			Span:   timespan.BetweenTimes(row.Begin, row.End),
		})
	}
	slices.SortFunc(out, func(a, b Pass) int { return cmp.Compare(a.Number, b.Number) })
	return out
}

func (r *Recorder) query(table, index string, args ...any) []Record {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(table, index, args...)
	if err != nil {
		r.setErr(err)
		return nil
	}
	var out []Record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*Record))
	}
	// uint indexes are varint encoded and do not iterate in numeric order.
	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

type passYAML struct {
	Number   uint64        `yaml:"number"`
	Start    time.Time     `yaml:"start"`
	Duration time.Duration `yaml:"duration"`
}

type dumpYAML struct {
	Passes []passYAML `yaml:"passes"`
	Events []Record   `yaml:"events"`
}

// WriteYAML writes every pass and event as a YAML document.
func (r *Recorder) WriteYAML(w io.Writer) error {
	dump := dumpYAML{Events: r.Events()}
	for _, p := range r.Passes() {
		dump.Passes = append(dump.Passes, passYAML{
			Number:   p.Number,
			Start:    p.Span.Start(),
			Duration: p.Span.Duration(),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(dump); err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	return enc.Close()
}
