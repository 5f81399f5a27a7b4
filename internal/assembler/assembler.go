// Package assembler places decoded segments into their final file on disk,
// either by a direct positional write (when the segment carries a yEnc
// begin offset) or by spilling to a per-segment temp file and merging them
// in order at finalize time (when no offset is known). Grounded on the
// corpus's WriteAt-based FileWriter for the positional path and its
// spill-file merge for the sequential path, generalized to support both
// under one API instead of picking one at compile time.
package assembler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

type fileHandle struct {
	mu   sync.Mutex
	file *os.File
}

// Assembler owns the open file handles for one job's output files and the
// directory holding spill files for segments written without a known
// offset.
type Assembler struct {
	spillDir string

	mu      sync.RWMutex
	handles map[string]*fileHandle
}

// New builds an Assembler. spillDir is created lazily the first time a
// sequential (offset-less) segment is written.
func New(spillDir string) *Assembler {
	return &Assembler{
		spillDir: spillDir,
		handles:  make(map[string]*fileHandle),
	}
}

// PreAllocate creates (or truncates) destPath to size bytes as a sparse
// file, so subsequent positional writes never need to extend it under lock.
func (a *Assembler) PreAllocate(destPath string, size int64) error {
	h, err := a.getOrCreate(destPath)
	if err != nil {
		return err
	}
	return h.file.Truncate(size)
}

// WriteAt writes data at the given 0-based byte offset in destPath. Safe to
// call concurrently; writes to the same file are serialized by that file's
// handle mutex.
func (a *Assembler) WriteAt(destPath string, data []byte, offset int64) error {
	h, err := a.getOrCreate(destPath)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.file.WriteAt(data, offset)
	return err
}

// Spill writes a segment's decoded data to its own temp file under
// spillDir, named by segmentID, for later sequential merging. Used when a
// segment carries no yEnc begin offset (single-part-per-article encodes
// that rely purely on NZB segment order).
func (a *Assembler) Spill(segmentID string, data []byte) error {
	if err := os.MkdirAll(a.spillDir, 0755); err != nil {
		return fmt.Errorf("assembler: creating spill dir: %w", err)
	}
	path := a.spillPath(segmentID)
	return os.WriteFile(path, data, 0644)
}

func (a *Assembler) spillPath(segmentID string) string {
	return filepath.Join(a.spillDir, segmentID)
}

// MergeSpilled appends, in the given order, every spill file named by
// segmentIDs into destPath, removing each spill file once copied. Call this
// once all of a file's segments without offsets have been spilled.
func (a *Assembler) MergeSpilled(destPath string, segmentIDs []string) error {
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, id := range segmentIDs {
		path := a.spillPath(id)
		if err := appendAndRemove(path, out); err != nil {
			return fmt.Errorf("assembler: merging segment %s: %w", id, err)
		}
	}
	return nil
}

func appendAndRemove(srcPath string, dst io.Writer) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("missing spill file %s: %w", srcPath, err)
	}
	_, err = io.Copy(dst, src)
	src.Close()
	if err != nil {
		return err
	}
	return os.Remove(srcPath)
}

func (a *Assembler) getOrCreate(path string) (*fileHandle, error) {
	a.mu.RLock()
	h, ok := a.handles[path]
	a.mu.RUnlock()
	if ok {
		return h, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok := a.handles[path]; ok {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("assembler: creating output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("assembler: opening output file: %w", err)
	}
	h = &fileHandle{file: f}
	a.handles[path] = h
	return h, nil
}

// Finalize truncates destPath to its exact final size (removing any
// pre-allocation padding), syncs, and closes the handle. Safe to call even
// if the file was never opened through this Assembler.
func (a *Assembler) Finalize(destPath string, finalSize int64) error {
	a.mu.Lock()
	h, ok := a.handles[destPath]
	if ok {
		delete(a.handles, destPath)
	}
	a.mu.Unlock()

	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if finalSize > 0 {
		if err := h.file.Truncate(finalSize); err != nil {
			return fmt.Errorf("assembler: truncating to final size: %w", err)
		}
	}
	if err := h.file.Sync(); err != nil {
		return err
	}
	return h.file.Close()
}

// CloseAll closes every still-open handle without truncating, for shutdown
// paths where a job is being abandoned rather than finalized.
func (a *Assembler) CloseAll() {
	a.mu.RLock()
	paths := make([]string, 0, len(a.handles))
	for p := range a.handles {
		paths = append(paths, p)
	}
	a.mu.RUnlock()

	for _, p := range paths {
		_ = a.Finalize(p, 0)
	}
}

// RemoveSpillDir best-effort removes the spill directory once a job
// completes, cleaning up any leftover files from a failed merge.
func (a *Assembler) RemoveSpillDir() error {
	return os.RemoveAll(a.spillDir)
}
