package kvs

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// entry pairs a live record with the exact number of bytes it occupies
// on disk.
type entry struct {
	record Record
	size   int
}

// Index maps keys to their currently authoritative record and tracks how
// many bytes of the log are reclaimable: every Remove record and every
// Set record superseded by a later Set or Remove for the same key.
//
// The map is an xsync.Map; a Store only ever drives it from one
// goroutine at a time, so no additional locking is added around it here.
type Index struct {
	entries     *xsync.Map
	uncompacted atomic.Uint64
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: xsync.NewMap()}
}

// Observe folds one appended record into the index. It must be called
// exactly once per record ever appended to the log: once per record
// during replay at open, and once more after every successful append
// during normal operation.
func (idx *Index) Observe(r Record, size int) {
	switch r.Kind {
	case KindSet:
		if old, ok := idx.entries.Load(r.Key); ok {
			idx.uncompacted.Add(uint64(old.(entry).size))
		}
		idx.entries.Store(r.Key, entry{record: r, size: size})
	case KindRemove:
		idx.uncompacted.Add(uint64(size))
		if old, ok := idx.entries.LoadAndDelete(r.Key); ok {
			idx.uncompacted.Add(uint64(old.(entry).size))
		}
	}
}

// Lookup returns the current record for key, if the index holds one.
func (idx *Index) Lookup(key string) (Record, bool) {
	v, ok := idx.entries.Load(key)
	if !ok {
		return Record{}, false
	}
	return v.(entry).record, true
}

// LiveRecords returns every record currently referenced by the index, in
// unspecified order.
func (idx *Index) LiveRecords() []Record {
	records := make([]Record, 0)
	idx.entries.Range(func(_ string, value interface{}) bool {
		records = append(records, value.(entry).record)
		return true
	})
	return records
}

// UncompactedBytes returns the total serialized size of every on-disk
// record no longer referenced by the index.
func (idx *Index) UncompactedBytes() uint64 {
	return idx.uncompacted.Load()
}

// Rebuild replaces the index's contents with live, whose on-disk sizes
// are given by sizes in the same order (as reported by
// LogFile.ReplaceWith), and resets uncompacted_bytes to zero. It is
// called once compaction has physically removed every superseded record
// from disk, so the bytes the index tracks keep reflecting the current
// on-disk encoding.
func (idx *Index) Rebuild(live []Record, sizes []int) {
	fresh := xsync.NewMap()
	for i, r := range live {
		fresh.Store(r.Key, entry{record: r, size: sizes[i]})
	}
	idx.entries = fresh
	idx.uncompacted.Store(0)
}
