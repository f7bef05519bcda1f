package bufman

import (
	"fmt"
	"io"
	"sync"

	veccache "github.com/sharedcode/veccache"
)

// memManager is an in-memory BufferManager test double, grounded on the
// teacher's L2InMemoryCache pattern of backing a production interface with
// a plain guarded slice/map for fast, deterministic tests.
type memManager struct {
	mu      sync.Mutex
	data    []byte
	cursors map[CursorID]int64
	nextID  CursorID
}

// NewMemory returns an in-memory BufferManager seeded with initial (which
// may be nil).
func NewMemory(initial []byte) BufferManager {
	data := make([]byte, len(initial))
	copy(data, initial)
	return &memManager{data: data, cursors: make(map[CursorID]int64)}
}

func (m *memManager) OpenCursor() (CursorID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.cursors[m.nextID] = 0
	return m.nextID, nil
}

func (m *memManager) CloseCursor(c CursorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cursors[c]; !ok {
		return veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}
	delete(m.cursors, c)
	return nil
}

func (m *memManager) SeekWithCursor(c CursorID, offset int64, whence int) (int64, error) {
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
		pos = int64(len(m.data)) + offset
	default:
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: bad whence %d", whence))
	}
	if pos < 0 {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: negative seek position %d", pos))
	}
	m.cursors[c] = pos
	return pos, nil
}

func (m *memManager) CursorPosition(c CursorID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.cursors[c]
	if !ok {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}
	return pos, nil
}

func (m *memManager) FileSize() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

func (m *memManager) growLocked(end int64) {
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
}

func (m *memManager) ReadWithCursor(c CursorID, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.cursors[c]
	if !ok {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}
	if pos >= int64(len(m.data)) {
		return 0, veccache.NewError(veccache.IoFailure, io.EOF)
	}
	n := copy(buf, m.data[pos:])
	m.cursors[c] = pos + int64(n)
	return n, nil
}

func (m *memManager) UpdateWithCursor(c CursorID, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.cursors[c]
	if !ok {
		return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("bufman: unknown cursor %d", c))
	}
	m.growLocked(pos + int64(len(buf)))
	n := copy(m.data[pos:], buf)
	m.cursors[c] = pos + int64(n)
	return n, nil
}

func (m *memManager) ReadU8WithCursor(c CursorID) (uint8, error) {
	var buf [1]byte
	if _, err := m.ReadWithCursor(c, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (m *memManager) ReadU16WithCursor(c CursorID) (uint16, error) {
	var buf [2]byte
	if _, err := m.ReadWithCursor(c, buf[:]); err != nil {
		return 0, err
	}
	return le16(buf[:]), nil
}

func (m *memManager) ReadU32WithCursor(c CursorID) (uint32, error) {
	var buf [4]byte
	if _, err := m.ReadWithCursor(c, buf[:]); err != nil {
		return 0, err
	}
	return le32(buf[:]), nil
}

func (m *memManager) UpdateU8WithCursor(c CursorID, v uint8) error {
	_, err := m.UpdateWithCursor(c, []byte{v})
	return err
}

func (m *memManager) UpdateU16WithCursor(c CursorID, v uint16) error {
	var buf [2]byte
	putLE16(buf[:], v)
	_, err := m.UpdateWithCursor(c, buf[:])
	return err
}

func (m *memManager) UpdateU32WithCursor(c CursorID, v uint32) error {
	var buf [4]byte
	putLE32(buf[:], v)
	_, err := m.UpdateWithCursor(c, buf[:])
	return err
}

func (m *memManager) Close() error { return nil }
