package kvs

import (
	"bufio"
	"io"
	"os"
)

// LogFile is an append-only log over a single file: an append-write
// handle positioned at end-of-file, plus the canonical path. No locking
// is performed here; callers guarantee single-process, single-writer use.
type LogFile struct {
	path string
	file *os.File
}

// OpenLogFile opens path for append, creating it if missing. It first
// runs the compaction recovery policy (see ReplaceWith) so that a crash
// during a prior compaction leaves exactly one consistent log file.
func OpenLogFile(path string) (*LogFile, error) {
	if err := recoverCompaction(path); err != nil {
		return nil, wrapIOError("recover", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, wrapIOError("open", err)
	}
	return &LogFile{path: path, file: f}, nil
}

// recoverCompaction implements the recovery policy: if path.new exists
// but path does not, a crash happened between renaming path away and
// renaming path.new into place, so promote path.new. If both path and
// path.old exist, a crash happened after the swap completed but before
// path.old was removed, so delete the leftover.
func recoverCompaction(path string) error {
	newPath := path + ".new"
	oldPath := path + ".old"

	_, errPath := os.Stat(path)
	_, errNew := os.Stat(newPath)
	_, errOld := os.Stat(oldPath)

	pathExists := errPath == nil
	newExists := errNew == nil
	oldExists := errOld == nil

	if !pathExists && newExists {
		if err := os.Rename(newPath, path); err != nil {
			return err
		}
		pathExists = true
	}
	if pathExists && oldExists {
		if err := os.Remove(oldPath); err != nil {
			return err
		}
	}
	return nil
}

// Append encodes r, writes the full encoded record in a single Write
// call, and fsyncs before returning so a subsequent reopen observes it.
// It reports the exact serialized size.
func (l *LogFile) Append(r Record) (int, error) {
	data, size, err := EncodeRecord(r)
	if err != nil {
		return 0, err
	}
	n, err := l.file.Write(data)
	if err != nil {
		return 0, wrapIOError("append", err)
	}
	if n != len(data) {
		return 0, wrapIOError("append", io.ErrShortWrite)
	}
	if err := l.file.Sync(); err != nil {
		return 0, wrapIOError("append", err)
	}
	return size, nil
}

// Scan reads the log sequentially from offset 0 through a fresh,
// independent read handle and invokes visit once per well-formed
// record. It is single-shot: it never rewinds and shares no state with
// the append handle. A record whose terminating delimiter never arrived
// (the tail of a file a crash interrupted mid-write) is silently
// treated as not-yet-durable and ends the scan without error; a
// complete, delimiter-terminated record that still fails to parse is a
// *DecodeError and ends the scan with that error.
func (l *LogFile) Scan(visit func(Record, int) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		return wrapIOError("scan", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64
	for {
		line, err := r.ReadBytes(delimiter)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return wrapIOError("scan", err)
		}
		rec, decErr := DecodeRecord(line[:len(line)-1])
		if decErr != nil {
			return &DecodeError{Offset: offset, Err: decErr}
		}
		if err := visit(rec, len(line)); err != nil {
			return err
		}
		offset += int64(len(line))
	}
}

// ReplaceWith atomically replaces the log with a file containing
// exactly the given live records, re-encoded. It returns the serialized
// size of each record in the same order as live; the caller must use
// these to re-seed its size accounting, since the bytes the index
// tracks must reflect the current on-disk encoding.
//
// Crash-safe swap: write path.new in full, rename path to path.old,
// rename path.new to path, delete path.old. A crash at any step leaves
// either the pre- or post-compaction log recoverable by
// recoverCompaction on next open.
func (l *LogFile) ReplaceWith(live []Record) ([]int, error) {
	newPath := l.path + ".new"
	oldPath := l.path + ".old"

	tmp, err := os.OpenFile(newPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, wrapIOError("compact-create", err)
	}

	sizes := make([]int, len(live))
	for i, rec := range live {
		data, size, err := EncodeRecord(rec)
		if err != nil {
			tmp.Close()
			os.Remove(newPath)
			return nil, err
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(newPath)
			return nil, wrapIOError("compact-write", err)
		}
		sizes[i] = size
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(newPath)
		return nil, wrapIOError("compact-sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(newPath)
		return nil, wrapIOError("compact-close", err)
	}

	if err := os.Rename(l.path, oldPath); err != nil {
		return nil, wrapIOError("compact-rename-old", err)
	}
	if err := os.Rename(newPath, l.path); err != nil {
		return nil, wrapIOError("compact-rename-new", err)
	}
	if err := os.Remove(oldPath); err != nil {
		return nil, wrapIOError("compact-remove-old", err)
	}

	if err := l.file.Close(); err != nil {
		return nil, wrapIOError("compact-reopen", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, wrapIOError("compact-reopen", err)
	}
	l.file = f

	return sizes, nil
}

// Close closes the append handle.
func (l *LogFile) Close() error {
	return wrapIOError("close", l.file.Close())
}
