// Package chunked implements the on-disk chunked serializer format of spec
// §4.9: fixed-size slot records grouped into chunks terminated by a
// next-chunk link, with a placeholder-write-then-patch protocol so a
// child's true offset (only known once the child itself has been
// serialized) can be backfilled into a slot reserved earlier in the file.
//
// The slot layouts and chunking walk are a direct, idiom-translated port of
// the recursive Rust CustomSerialize impls for LazyItemVec/LazyItemMap in
// original_source/src/models/serializer/lazy_item_{vec,map}.rs: this
// package owns the byte-layout and chunk-walking mechanics, while the
// per-item (de)serialize callback is supplied by the caller so that
// chunked itself stays free of any node-type knowledge.
package chunked

import (
	"fmt"
	"io"
	"math"

	"github.com/sharedcode/veccache/bufman"
)

// SlotInvalid marks an empty sequence/map slot and, doubling as the
// next-chunk link sentinel, marks the final chunk in a chain.
const SlotInvalid = math.MaxUint32

// SeqSlot is one 10-byte sequence-chunk record: an item's combined file
// location plus the version metadata needed to resolve it independently of
// the chunk's own version branch.
type SeqSlot struct {
	Offset        uint32
	VersionNumber uint16
	VersionID     uint32
}

// IsEmpty reports whether this slot was never populated (spec §4.9: offset
// == SlotInvalid means "skip, no item here").
func (s SeqSlot) IsEmpty() bool { return s.Offset == SlotInvalid }

func emptySeqSlot() SeqSlot {
	return SeqSlot{Offset: SlotInvalid, VersionNumber: math.MaxUint16, VersionID: SlotInvalid}
}

const seqSlotSize = 10 // u32 + u16 + u32

func writeSeqSlot(m bufman.BufferManager, c bufman.CursorID, s SeqSlot) error {
	if err := m.UpdateU32WithCursor(c, s.Offset); err != nil {
		return err
	}
	if err := m.UpdateU16WithCursor(c, s.VersionNumber); err != nil {
		return err
	}
	return m.UpdateU32WithCursor(c, s.VersionID)
}

func readSeqSlot(m bufman.BufferManager, c bufman.CursorID) (SeqSlot, error) {
	offset, err := m.ReadU32WithCursor(c)
	if err != nil {
		return SeqSlot{}, err
	}
	versionNumber, err := m.ReadU16WithCursor(c)
	if err != nil {
		return SeqSlot{}, err
	}
	versionID, err := m.ReadU32WithCursor(c)
	if err != nil {
		return SeqSlot{}, err
	}
	return SeqSlot{Offset: offset, VersionNumber: versionNumber, VersionID: versionID}, nil
}

// MapSlot is one 14-byte map-chunk record: a key slot plus a value slot.
type MapSlot struct {
	KeyOffset     uint32
	Offset        uint32
	VersionNumber uint16
	VersionID     uint32
}

func (s MapSlot) IsEmpty() bool { return s.KeyOffset == SlotInvalid }

func emptyMapSlot() MapSlot {
	return MapSlot{KeyOffset: SlotInvalid, Offset: SlotInvalid, VersionNumber: math.MaxUint16, VersionID: SlotInvalid}
}

const mapSlotSize = 14 // u32 + u32 + u16 + u32

func writeMapSlot(m bufman.BufferManager, c bufman.CursorID, s MapSlot) error {
	if err := m.UpdateU32WithCursor(c, s.KeyOffset); err != nil {
		return err
	}
	if err := m.UpdateU32WithCursor(c, s.Offset); err != nil {
		return err
	}
	if err := m.UpdateU16WithCursor(c, s.VersionNumber); err != nil {
		return err
	}
	return m.UpdateU32WithCursor(c, s.VersionID)
}

func readMapSlot(m bufman.BufferManager, c bufman.CursorID) (MapSlot, error) {
	keyOffset, err := m.ReadU32WithCursor(c)
	if err != nil {
		return MapSlot{}, err
	}
	offset, err := m.ReadU32WithCursor(c)
	if err != nil {
		return MapSlot{}, err
	}
	versionNumber, err := m.ReadU16WithCursor(c)
	if err != nil {
		return MapSlot{}, err
	}
	versionID, err := m.ReadU32WithCursor(c)
	if err != nil {
		return MapSlot{}, err
	}
	return MapSlot{KeyOffset: keyOffset, Offset: offset, VersionNumber: versionNumber, VersionID: versionID}, nil
}

// WriteSequence serializes n items into chunked sequence slots at the
// cursor's current position, calling serializeItem(i) for each index to
// obtain its slot once the item itself has been written elsewhere in the
// file (spec §4.9's placeholder-write-then-patch protocol). It returns the
// start offset of the chunk chain, or SlotInvalid for an empty sequence.
func WriteSequence(m bufman.BufferManager, c bufman.CursorID, chunkSize, n int, serializeItem func(i int) (SeqSlot, error)) (uint32, error) {
	if n == 0 {
		return SlotInvalid, nil
	}
	pos, err := m.CursorPosition(c)
	if err != nil {
		return 0, err
	}
	startOffset := uint32(pos)

	for chunkStart := 0; chunkStart < n; chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > n {
			chunkEnd = n
		}
		isLastChunk := chunkEnd == n

		placeholderPos, err := m.CursorPosition(c)
		if err != nil {
			return 0, err
		}
		placeholderStart := uint32(placeholderPos)
		for i := 0; i < chunkSize; i++ {
			if err := writeSeqSlot(m, c, emptySeqSlot()); err != nil {
				return 0, err
			}
		}
		nextChunkPlaceholderPos, err := m.CursorPosition(c)
		if err != nil {
			return 0, err
		}
		nextChunkPlaceholder := uint32(nextChunkPlaceholderPos)
		if err := m.UpdateU32WithCursor(c, SlotInvalid); err != nil {
			return 0, err
		}

		for i := chunkStart; i < chunkEnd; i++ {
			slot, err := serializeItem(i)
			if err != nil {
				return 0, fmt.Errorf("chunked: serialize item %d: %w", i, err)
			}
			slotPos := int64(placeholderStart) + int64(i-chunkStart)*seqSlotSize
			currentPos, err := m.CursorPosition(c)
			if err != nil {
				return 0, err
			}
			if _, err := m.SeekWithCursor(c, slotPos, io.SeekStart); err != nil {
				return 0, err
			}
			if err := writeSeqSlot(m, c, slot); err != nil {
				return 0, err
			}
			if _, err := m.SeekWithCursor(c, currentPos, io.SeekStart); err != nil {
				return 0, err
			}
		}

		nextChunkStartPos, err := m.CursorPosition(c)
		if err != nil {
			return 0, err
		}
		nextChunkStart := uint32(nextChunkStartPos)
		if _, err := m.SeekWithCursor(c, int64(nextChunkPlaceholder), io.SeekStart); err != nil {
			return 0, err
		}
		if isLastChunk {
			if err := m.UpdateU32WithCursor(c, SlotInvalid); err != nil {
				return 0, err
			}
		} else {
			if err := m.UpdateU32WithCursor(c, nextChunkStart); err != nil {
				return 0, err
			}
		}
		if _, err := m.SeekWithCursor(c, int64(nextChunkStart), io.SeekStart); err != nil {
			return 0, err
		}
	}
	return startOffset, nil
}

// ReadSequence walks the chunk chain starting at offset, invoking onSlot
// for every non-empty slot encountered in order. An offset of SlotInvalid
// is treated as an empty sequence and onSlot is never called.
func ReadSequence(m bufman.BufferManager, offset uint32, chunkSize int, onSlot func(SeqSlot) error) error {
	if offset == SlotInvalid {
		return nil
	}
	c, err := m.OpenCursor()
	if err != nil {
		return err
	}
	defer m.CloseCursor(c)

	currentChunk := offset
	for {
		for i := 0; i < chunkSize; i++ {
			if _, err := m.SeekWithCursor(c, int64(currentChunk)+int64(i)*seqSlotSize, io.SeekStart); err != nil {
				return err
			}
			slot, err := readSeqSlot(m, c)
			if err != nil {
				return err
			}
			if slot.IsEmpty() {
				continue
			}
			if err := onSlot(slot); err != nil {
				return err
			}
		}
		if _, err := m.SeekWithCursor(c, int64(currentChunk)+int64(chunkSize)*seqSlotSize, io.SeekStart); err != nil {
			return err
		}
		next, err := m.ReadU32WithCursor(c)
		if err != nil {
			return err
		}
		if next == SlotInvalid {
			return nil
		}
		currentChunk = next
	}
}

// WriteMap is the map-slot counterpart of WriteSequence: serializeEntry(i)
// must serialize both the key and the value and return their combined slot.
func WriteMap(m bufman.BufferManager, c bufman.CursorID, chunkSize, n int, serializeEntry func(i int) (MapSlot, error)) (uint32, error) {
	if n == 0 {
		return SlotInvalid, nil
	}
	pos, err := m.CursorPosition(c)
	if err != nil {
		return 0, err
	}
	startOffset := uint32(pos)

	for chunkStart := 0; chunkStart < n; chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > n {
			chunkEnd = n
		}
		isLastChunk := chunkEnd == n

		placeholderPos, err := m.CursorPosition(c)
		if err != nil {
			return 0, err
		}
		placeholderStart := uint32(placeholderPos)
		for i := 0; i < chunkSize; i++ {
			if err := writeMapSlot(m, c, emptyMapSlot()); err != nil {
				return 0, err
			}
		}
		nextChunkPlaceholderPos, err := m.CursorPosition(c)
		if err != nil {
			return 0, err
		}
		nextChunkPlaceholder := uint32(nextChunkPlaceholderPos)
		if err := m.UpdateU32WithCursor(c, SlotInvalid); err != nil {
			return 0, err
		}

		for i := chunkStart; i < chunkEnd; i++ {
			slot, err := serializeEntry(i)
			if err != nil {
				return 0, fmt.Errorf("chunked: serialize entry %d: %w", i, err)
			}
			slotPos := int64(placeholderStart) + int64(i-chunkStart)*mapSlotSize
			currentPos, err := m.CursorPosition(c)
			if err != nil {
				return 0, err
			}
			if _, err := m.SeekWithCursor(c, slotPos, io.SeekStart); err != nil {
				return 0, err
			}
			if err := writeMapSlot(m, c, slot); err != nil {
				return 0, err
			}
			if _, err := m.SeekWithCursor(c, currentPos, io.SeekStart); err != nil {
				return 0, err
			}
		}

		nextChunkStartPos, err := m.CursorPosition(c)
		if err != nil {
			return 0, err
		}
		nextChunkStart := uint32(nextChunkStartPos)
		if _, err := m.SeekWithCursor(c, int64(nextChunkPlaceholder), io.SeekStart); err != nil {
			return 0, err
		}
		if isLastChunk {
			if err := m.UpdateU32WithCursor(c, SlotInvalid); err != nil {
				return 0, err
			}
		} else {
			if err := m.UpdateU32WithCursor(c, nextChunkStart); err != nil {
				return 0, err
			}
		}
		if _, err := m.SeekWithCursor(c, int64(nextChunkStart), io.SeekStart); err != nil {
			return 0, err
		}
	}
	return startOffset, nil
}

// ReadMap walks the chunk chain starting at offset, invoking onSlot for
// every non-empty entry.
func ReadMap(m bufman.BufferManager, offset uint32, chunkSize int, onSlot func(MapSlot) error) error {
	if offset == SlotInvalid {
		return nil
	}
	c, err := m.OpenCursor()
	if err != nil {
		return err
	}
	defer m.CloseCursor(c)

	currentChunk := offset
	for {
		for i := 0; i < chunkSize; i++ {
			if _, err := m.SeekWithCursor(c, int64(currentChunk)+int64(i)*mapSlotSize, io.SeekStart); err != nil {
				return err
			}
			slot, err := readMapSlot(m, c)
			if err != nil {
				return err
			}
			if slot.IsEmpty() {
				continue
			}
			if err := onSlot(slot); err != nil {
				return err
			}
		}
		if _, err := m.SeekWithCursor(c, int64(currentChunk)+int64(chunkSize)*mapSlotSize, io.SeekStart); err != nil {
			return err
		}
		next, err := m.ReadU32WithCursor(c)
		if err != nil {
			return err
		}
		if next == SlotInvalid {
			return nil
		}
		currentChunk = next
	}
}
