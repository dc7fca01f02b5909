package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// slot addresses one entry. Both parts are kept separate so that no pair can
// alias another, whatever characters they contain.
type slot struct {
	namespace  string
	resourceID string
}

func (s slot) String() string {
	return Key(s.namespace, s.resourceID)
}

// flightKey is the singleflight key for s. The namespace is length-prefixed
// so distinct slots never share a flight.
func (s slot) flightKey() string {
	return strconv.Itoa(len(s.namespace)) + ":" + s.namespace + KeySeparator + s.resourceID
}

type shard struct {
	mutex   sync.RWMutex
	entries map[slot]*Entry
}

// Table holds every materialized entry for the lifetime of the process. It is
// safe for concurrent use. Entries are never evicted, only superseded.
type Table struct {
	shards []*shard
	cfg    config
	group  singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	refreshes atomic.Int64
	empty     atomic.Int64
	faults    atomic.Int64
}

// New returns an empty Table.
func New(opts ...Option) *Table {
	cfg := applyOptions(opts)
	t := &Table{
		shards: make([]*shard, cfg.shards),
		cfg:    cfg,
	}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[slot]*Entry)}
	}
	return t
}

func (t *Table) shardFor(key slot) *shard {
	d := xxhash.New()
	d.WriteString(key.namespace)
	d.Write([]byte{0})
	d.WriteString(key.resourceID)
	return t.shards[d.Sum64()%uint64(len(t.shards))]
}

func (t *Table) load(key slot) (Entry, bool) {
	s := t.shardFor(key)
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// store writes val under key and returns the timestamp recorded. LastUpdated
// never moves backwards for a key even if a writer with an earlier clock
// reading wins the lock last.
func (t *Table) store(key slot, val any) (Entry, error) {
	if t.cfg.isolate {
		data, err := msgpack.Marshal(val)
		if err != nil {
			return Entry{}, err
		}
		val = data
	}
	s := t.shardFor(key)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	now := t.cfg.clock.Now()
	if e, ok := s.entries[key]; ok {
		if now.Before(e.LastUpdated) {
			now = e.LastUpdated
		}
		e.Value = val
		e.LastUpdated = now
		return *e, nil
	}
	e := &Entry{Value: val, LastUpdated: now}
	s.entries[key] = e
	return *e, nil
}

// Peek returns the entry for a key without aging it or invoking anything.
// When the table isolates values the returned Value is the encoded form.
func (t *Table) Peek(namespace, resourceID string) (Entry, bool) {
	return t.load(slot{namespace: namespace, resourceID: resourceID})
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	var n int
	for _, s := range t.shards {
		s.mutex.RLock()
		n += len(s.entries)
		s.mutex.RUnlock()
	}
	return n
}

// Stats returns a snapshot of the table's counters.
func (t *Table) Stats() Stats {
	return Stats{
		Hits:      t.hits.Load(),
		Misses:    t.misses.Load(),
		Refreshes: t.refreshes.Load(),
		Empty:     t.empty.Load(),
		Faults:    t.faults.Load(),
		Entries:   t.Len(),
	}
}
