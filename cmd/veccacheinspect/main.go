// Command veccacheinspect is diagnostic tooling for a veccache store
// directory: it walks a chunked sequence or map chain starting at a given
// offset and prints the slots it finds. It has no bearing on the cache
// library's own contract (spec.md's "CLI / environment: None" refers to
// the library, not to tooling built on top of it).
package main

import (
	"flag"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"

	veccache "github.com/sharedcode/veccache"
	"github.com/sharedcode/veccache/bufman"
	"github.com/sharedcode/veccache/chunked"
)

func main() {
	veccache.ConfigureLogging()

	var (
		dir       = flag.String("dir", ".", "store directory containing the target file")
		file      = flag.String("file", "", "file name within -dir to inspect")
		offset    = flag.Uint("offset", 0, "chunk-chain start offset")
		chunkSize = flag.Uint("chunk-size", 256, "chunk size used when the file was written")
		kind      = flag.String("kind", "sequence", "chain kind: sequence or map")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "veccacheinspect: -file is required")
		os.Exit(2)
	}

	if err := run(*dir, *file, uint32(*offset), int(*chunkSize), *kind); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func run(dir, file string, offset uint32, chunkSize int, kind string) error {
	path := filepath.Join(dir, file)
	m, err := bufman.OpenFile(path)
	if err != nil {
		return veccache.NewError(veccache.IoFailure, err)
	}
	defer m.Close()

	size, err := m.FileSize()
	if err != nil {
		return err
	}
	fmt.Printf("file: %s (%d bytes)\n", path, size)
	fmt.Printf("chain kind: %s, chunk size: %d, start offset: %d\n", kind, chunkSize, offset)

	switch kind {
	case "sequence":
		count := 0
		err = chunked.ReadSequence(m, offset, chunkSize, func(s chunked.SeqSlot) error {
			fmt.Printf("  [%d] offset=%d version_number=%d version_id=%d\n", count, s.Offset, s.VersionNumber, s.VersionID)
			count++
			return nil
		})
		fmt.Printf("total slots: %d\n", count)
	case "map":
		count := 0
		err = chunked.ReadMap(m, offset, chunkSize, func(s chunked.MapSlot) error {
			fmt.Printf("  [%d] key_offset=%d offset=%d version_number=%d version_id=%d\n", count, s.KeyOffset, s.Offset, s.VersionNumber, s.VersionID)
			count++
			return nil
		})
		fmt.Printf("total entries: %d\n", count)
	default:
		return veccache.NewError(veccache.InvalidInput, fmt.Errorf("veccacheinspect: unknown -kind %q, want sequence or map", kind))
	}
	return err
}
