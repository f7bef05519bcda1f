package bufman

import (
	"io"
	"os"

	"github.com/ncw/directio"

	veccache "github.com/sharedcode/veccache"
)

// ScanRegion performs a sector-aligned bulk sequential read of count bytes
// starting at offset, backing DenseIndexCache.load_region's prefetch path
// (spec §4.6). It bypasses the page cache via direct I/O the same way the
// teacher's fs/file_direct_io.go does for its own bulk scans, since a
// region load is a one-shot sweep that gains nothing from caching the pages
// a second time.
//
// path must name the same file this Manager was opened against; ScanRegion
// opens its own direct-I/O handle because O_DIRECT imposes alignment
// requirements the regular cursor-based handle isn't opened with.
func ScanRegion(path string, offset, count int64) ([]byte, error) {
	f, err := directio.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, veccache.NewError(veccache.IoFailure, err)
	}
	defer f.Close()

	alignedOffset := offset &^ (directio.BlockSize - 1)
	skip := offset - alignedOffset
	alignedCount := skip + count
	if rem := alignedCount % directio.BlockSize; rem != 0 {
		alignedCount += directio.BlockSize - rem
	}

	block := directio.AlignedBlock(int(alignedCount))
	n, err := f.ReadAt(block, alignedOffset)
	if err != nil && err != io.EOF {
		return nil, veccache.NewError(veccache.IoFailure, err)
	}

	end := skip + count
	if int64(n) < end {
		end = int64(n)
	}
	if end < skip {
		end = skip
	}
	return block[skip:end], nil
}
