package chunked

import (
	"fmt"
	"io"
	"unicode/utf8"

	veccache "github.com/sharedcode/veccache"
	"github.com/sharedcode/veccache/bufman"
)

// msbTag marks an IdentityMapKey's encoded length as a string key; it is
// set on a key's u32 header whenever the key is not a plain integer, the
// same MSB convention serializer/lazy_item_map.rs's IdentityMapKey
// CustomSerialize impl uses.
const msbTag = uint32(1) << 31

// IdentityMapKey is a map key that is either a bare integer or a
// length-prefixed UTF-8 string, distinguished on disk by the MSB of its
// leading u32 (spec §4.9).
type IdentityMapKey struct {
	IsString bool
	Str      string
	Int      uint32
}

// IntKey constructs an integer IdentityMapKey.
func IntKey(v uint32) IdentityMapKey { return IdentityMapKey{Int: v} }

// StringKey constructs a string IdentityMapKey.
func StringKey(v string) IdentityMapKey { return IdentityMapKey{IsString: true, Str: v} }

// EncodeIdentityMapKey writes k at the cursor's current position and
// returns the start offset, matching the `serialize(...) -> offset`
// contract of spec §6.
func EncodeIdentityMapKey(m bufman.BufferManager, c bufman.CursorID, k IdentityMapKey) (uint32, error) {
	pos, err := m.CursorPosition(c)
	if err != nil {
		return 0, err
	}
	start := uint32(pos)

	if k.IsString {
		b := []byte(k.Str)
		if uint32(len(b))&msbTag != 0 {
			return 0, veccache.NewError(veccache.InvalidInput, fmt.Errorf("chunked: string key too long to encode: %d bytes", len(b)))
		}
		if err := m.UpdateU32WithCursor(c, msbTag|uint32(len(b))); err != nil {
			return 0, err
		}
		if _, err := m.UpdateWithCursor(c, b); err != nil {
			return 0, err
		}
		return start, nil
	}

	if err := m.UpdateU32WithCursor(c, k.Int); err != nil {
		return 0, err
	}
	return start, nil
}

// DecodeIdentityMapKey reads the IdentityMapKey located at offset,
// distinguishing string vs. int encoding by the MSB of the leading u32.
func DecodeIdentityMapKey(m bufman.BufferManager, offset uint32) (IdentityMapKey, error) {
	if offset == SlotInvalid {
		return IdentityMapKey{}, veccache.NewError(veccache.InvalidInput, fmt.Errorf("chunked: cannot decode IdentityMapKey at an invalid offset"))
	}
	c, err := m.OpenCursor()
	if err != nil {
		return IdentityMapKey{}, err
	}
	defer m.CloseCursor(c)

	if _, err := m.SeekWithCursor(c, int64(offset), io.SeekStart); err != nil {
		return IdentityMapKey{}, err
	}
	header, err := m.ReadU32WithCursor(c)
	if err != nil {
		return IdentityMapKey{}, err
	}
	if header&msbTag == 0 {
		return IdentityMapKey{Int: header}, nil
	}

	length := header &^ msbTag
	buf := make([]byte, length)
	if _, err := m.ReadWithCursor(c, buf); err != nil {
		return IdentityMapKey{}, err
	}
	if !utf8.Valid(buf) {
		return IdentityMapKey{}, veccache.NewError(veccache.InvalidInput, fmt.Errorf("chunked: malformed UTF-8 in string key at offset %d", offset))
	}
	return IdentityMapKey{IsString: true, Str: string(buf)}, nil
}
