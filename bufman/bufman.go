// Package bufman implements the buffer-manager external interface contract
// of spec §6: cursor-oriented reads/writes over a fixed on-disk file, with
// little-endian fixed-width accessors for the chunked serializer format of
// spec §4.9.
//
// The file-backed implementation follows the teacher's direct-I/O wrapper
// in fs/file_direct_io.go (open/read/write/lock helpers around *os.File) and
// its Retry helper in retry.go for transient I/O errors; the in-memory
// implementation exists purely for tests, grounded on the same shape as the
// teacher's L2InMemoryCache test double.
package bufman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	veccache "github.com/sharedcode/veccache"
)

// CursorID identifies one open seek position within a Manager. Cursors let
// multiple call sites interleave reads against the same underlying file
// without fighting over a single implicit offset (spec §6).
type CursorID uint32

// BufferManager is the external interface contract consumed by every typed
// cache and the chunked serializer (spec §6).
type BufferManager interface {
	OpenCursor() (CursorID, error)
	CloseCursor(c CursorID) error
	SeekWithCursor(c CursorID, offset int64, whence int) (int64, error)
	CursorPosition(c CursorID) (int64, error)

	ReadU8WithCursor(c CursorID) (uint8, error)
	ReadU16WithCursor(c CursorID) (uint16, error)
	ReadU32WithCursor(c CursorID) (uint32, error)
	UpdateU8WithCursor(c CursorID, v uint8) error
	UpdateU16WithCursor(c CursorID, v uint16) error
	UpdateU32WithCursor(c CursorID, v uint32) error

	ReadWithCursor(c CursorID, buf []byte) (int, error)
	UpdateWithCursor(c CursorID, buf []byte) (int, error)

	FileSize() (int64, error)
	Close() error
}

// Factory is the `get(version) -> BufMan` contract of spec §6: one Manager
// per version branch, lazily opened and cached for reuse.
type Factory struct {
	mu       sync.Mutex
	dir      string
	pattern  string
	managers map[veccache.VersionID]BufferManager
	open     func(path string) (BufferManager, error)
}

// NewFactory creates a Factory that opens files named fmt.Sprintf(pattern,
// version) under dir, e.g. pattern "level0.%s.dat".
func NewFactory(dir, pattern string) *Factory {
	return &Factory{
		dir:      dir,
		pattern:  pattern,
		managers: make(map[veccache.VersionID]BufferManager),
		open:     func(path string) (BufferManager, error) { return OpenFile(path) },
	}
}

// Get returns the Manager for version, opening its backing file on first
// use.
func (f *Factory) Get(version veccache.VersionID) (BufferManager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.managers[version]; ok {
		return m, nil
	}
	path := fmt.Sprintf("%s/%s", f.dir, fmt.Sprintf(f.pattern, version.String()))
	m, err := f.open(path)
	if err != nil {
		return nil, veccache.NewError(veccache.IoFailure, err)
	}
	f.managers[version] = m
	return m, nil
}

// CloseAll closes every Manager this factory has opened.
func (f *Factory) CloseAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for v, m := range f.managers {
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
		delete(f.managers, v)
	}
	return first
}

type fileManager struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	cursors map[CursorID]int64
	nextID  CursorID
}

// OpenFile opens (creating if necessary) a file-backed BufferManager.
func OpenFile(path string) (BufferManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileManager{file: f, path: path, cursors: make(map[CursorID]int64)}, nil
}

// PathProvider is implemented by BufferManagers backed by a real on-disk
// path, letting a caller that wants direct I/O (ScanRegion) reach past the
// cursor contract without it being part of the core BufferManager interface
// every implementation — including the in-memory test double — must satisfy.
type PathProvider interface {
	Path() string
}

// Path returns the backing file path, satisfying PathProvider.
func (m *fileManager) Path() string {
	return m.path
}

func (m *fileManager) OpenCursor() (CursorID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.cursors[id] = 0
	return id, nil
}

func (m *fileManager) CloseCursor(c CursorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cursors[c]; !ok {
		return veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}
	delete(m.cursors, c)
	return nil
}

func (m *fileManager) SeekWithCursor(c CursorID, offset int64, whence int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.cursors[c]
	if !ok {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos += offset
	case io.SeekEnd:
		size, err := m.fileSizeLocked()
		if err != nil {
			return 0, err
		}
		pos = size + offset
	default:
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: bad whence %d", whence))
	}
	if pos < 0 {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: negative seek position %d", pos))
	}
	m.cursors[c] = pos
	return pos, nil
}

func (m *fileManager) CursorPosition(c CursorID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.cursors[c]
	if !ok {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}
	return pos, nil
}

func (m *fileManager) fileSizeLocked() (int64, error) {
	fi, err := m.file.Stat()
	if err != nil {
		return 0, veccache.NewError(veccache.IoFailure, err)
	}
	return fi.Size(), nil
}

func (m *fileManager) FileSize() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fileSizeLocked()
}

// withRetry wraps a file op with the teacher's Fibonacci backoff policy
// (retry.go): up to 3 retries starting at 50ms, within a 5s overall
// timeout. Errors matching os.ErrClosed, os.ErrPermission or os.ErrNotExist
// are returned at once; every other error is treated as transient and
// retried. The classification uses the os package's sentinel errors
// instead of the teacher's ShouldRetry, since this package has no
// dependency on it.
func withRetry(op func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b := retry.NewFibonacci(50 * time.Millisecond)
	return retry.Do(ctx, retry.WithMaxRetries(3, b), func(ctx context.Context) error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, os.ErrClosed) || errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrNotExist) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (m *fileManager) ReadWithCursor(c CursorID, buf []byte) (int, error) {
	m.mu.Lock()
	pos, ok := m.cursors[c]
	m.mu.Unlock()
	if !ok {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}

	var n int
	err := withRetry(func() error {
		var rerr error
		n, rerr = m.file.ReadAt(buf, pos)
		if rerr == io.EOF && n > 0 {
			rerr = nil
		}
		return rerr
	})
	if err != nil {
		return n, veccache.NewError(veccache.IoFailure, err)
	}

	m.mu.Lock()
	m.cursors[c] = pos + int64(n)
	m.mu.Unlock()
	return n, nil
}

func (m *fileManager) UpdateWithCursor(c CursorID, buf []byte) (int, error) {
	m.mu.Lock()
	pos, ok := m.cursors[c]
	m.mu.Unlock()
	if !ok {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}

	var n int
	err := withRetry(func() error {
		var werr error
		n, werr = m.file.WriteAt(buf, pos)
		return werr
	})
	if err != nil {
		return n, veccache.NewError(veccache.IoFailure, err)
	}

	m.mu.Lock()
	m.cursors[c] = pos + int64(n)
	m.mu.Unlock()
	return n, nil
}

func (m *fileManager) ReadU8WithCursor(c CursorID) (uint8, error) {
	var buf [1]byte
	if _, err := m.ReadWithCursor(c, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (m *fileManager) ReadU16WithCursor(c CursorID) (uint16, error) {
	var buf [2]byte
	if _, err := m.ReadWithCursor(c, buf[:]); err != nil {
		return 0, err
	}
	return le16(buf[:]), nil
}

func (m *fileManager) ReadU32WithCursor(c CursorID) (uint32, error) {
	var buf [4]byte
	if _, err := m.ReadWithCursor(c, buf[:]); err != nil {
		return 0, err
	}
	return le32(buf[:]), nil
}

func (m *fileManager) UpdateU8WithCursor(c CursorID, v uint8) error {
	_, err := m.UpdateWithCursor(c, []byte{v})
	return err
}

func (m *fileManager) UpdateU16WithCursor(c CursorID, v uint16) error {
	var buf [2]byte
	putLE16(buf[:], v)
	_, err := m.UpdateWithCursor(c, buf[:])
	return err
}

func (m *fileManager) UpdateU32WithCursor(c CursorID, v uint32) error {
	var buf [4]byte
	putLE32(buf[:], v)
	_, err := m.UpdateWithCursor(c, buf[:])
	return err
}

func (m *fileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// ReadAt is a point-read convenience built from the cursor primitives, used
// by propstore and other one-shot readers that don't need a long-lived
// cursor of their own.
func ReadAt(m BufferManager, offset, length uint32) ([]byte, error) {
	c, err := m.OpenCursor()
	if err != nil {
		return nil, err
	}
	defer m.CloseCursor(c)

	if _, err := m.SeekWithCursor(c, int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := m.ReadWithCursor(c, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteAt is the write-side counterpart of ReadAt, returning the offset the
// data was written at (the position the cursor held before the write),
// matching the `serialize(...) -> start offset` contract of spec §6.
func WriteAt(m BufferManager, offset uint32, data []byte) (uint32, error) {
	c, err := m.OpenCursor()
	if err != nil {
		return 0, err
	}
	defer m.CloseCursor(c)

	if _, err := m.SeekWithCursor(c, int64(offset), io.SeekStart); err != nil {
		return 0, err
	}
	if _, err := m.UpdateWithCursor(c, data); err != nil {
		return 0, err
	}
	return offset, nil
}

// PointReader adapts a BufferManager to propstore.Reader's ReadAt shape, so
// property lookups don't need to manage a cursor of their own.
type PointReader struct {
	Manager BufferManager
}

func (p PointReader) ReadAt(offset, length uint32) ([]byte, error) {
	return ReadAt(p.Manager, offset, length)
}

// Append writes data at the current end of the file and returns the start
// offset, the usual case for the placeholder-write-then-patch protocol of
// spec §4.9.
func Append(m BufferManager, data []byte) (uint32, error) {
	size, err := m.FileSize()
	if err != nil {
		return 0, err
	}
	return WriteAt(m, uint32(size), data)
}
