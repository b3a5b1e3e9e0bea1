// Package kvs implements an embedded, single-process, single-writer
// key-value store that persists string keys to string values on local
// durable storage. Writes are appended to a write-ahead log; reads are
// served from an in-memory index; a compaction step eventually rewrites
// the log to contain only live records.
package kvs

// defaultCompactionThreshold is the reclaimable-bytes watermark (1 MiB)
// that triggers compaction after a successful Set or Remove.
const defaultCompactionThreshold uint64 = 1 << 20

// Option configures a Store at construction time.
type Option func(*Store)

// WithCompactionThreshold overrides the default 1 MiB compaction
// threshold.
func WithCompactionThreshold(n uint64) Option {
	return func(s *Store) { s.compactionThreshold = n }
}

// Store is the public get/set/remove facade binding the log file, the
// index, and the compaction protocol together.
type Store struct {
	log                 *LogFile
	index               *Index
	compactionThreshold uint64
}

// Open opens the log file at path, creating it if absent, and replays it
// to rebuild the index. A decode error during replay is fatal: it is
// returned and the store is not usable.
func Open(path string, opts ...Option) (*Store, error) {
	log, err := OpenLogFile(path)
	if err != nil {
		return nil, err
	}

	index := NewIndex()
	if err := log.Scan(func(r Record, size int) error {
		index.Observe(r, size)
		return nil
	}); err != nil {
		log.Close()
		return nil, err
	}

	s := &Store{
		log:                 log,
		index:               index,
		compactionThreshold: defaultCompactionThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the current value for key, or ErrKeyNotFound if key is
// absent or was last tombstoned. It never touches disk: the index is
// authoritative once replay has completed.
func (s *Store) Get(key string) (string, error) {
	rec, ok := s.index.Lookup(key)
	if !ok || rec.Kind != KindSet {
		return "", ErrKeyNotFound
	}
	return rec.Value, nil
}

// Set durably appends Set(key, value), updates the index, and compacts
// the log if the reclaimable-bytes threshold has been crossed. On an I/O
// failure the append did not complete, so the index is left unchanged.
func (s *Store) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}

	r := NewSetRecord(key, value)
	size, err := s.log.Append(r)
	if err != nil {
		return err
	}
	s.index.Observe(r, size)

	if s.index.UncompactedBytes() >= s.compactionThreshold {
		return s.compact()
	}
	return nil
}

// Remove tombstones key. If key is not currently live, it returns
// ErrKeyNotFound and appends nothing, bounding log growth from repeated
// removes of absent keys.
func (s *Store) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	rec, ok := s.index.Lookup(key)
	if !ok || rec.Kind != KindSet {
		return ErrKeyNotFound
	}

	r := NewRemoveRecord(key)
	size, err := s.log.Append(r)
	if err != nil {
		return err
	}
	s.index.Observe(r, size)

	if s.index.UncompactedBytes() >= s.compactionThreshold {
		return s.compact()
	}
	return nil
}

// compact rewrites the log to contain exactly the live records, then
// re-seeds the index's per-entry sizes from the re-encoded file and
// resets uncompacted_bytes to zero.
func (s *Store) compact() error {
	live := s.index.LiveRecords()
	sizes, err := s.log.ReplaceWith(live)
	if err != nil {
		return err
	}
	s.index.Rebuild(live, sizes)
	return nil
}

// Close releases the underlying file handle. The store must not be used
// afterward.
func (s *Store) Close() error {
	return s.log.Close()
}
