package veccache

import (
	"encoding/json"
	"os"
)

// Configuration bundles the tuning knobs for a running cache instance,
// loadable from JSON (spec §11, mirroring the teacher's config.go).
type Configuration struct {
	// LRUMinCapacity / LRUMaxCapacity bound the probabilistic LRU (spec §4.1).
	LRUMinCapacity int `json:"lruMinCapacity"`
	LRUMaxCapacity int `json:"lruMaxCapacity"`
	// EvictionProbability is the per-op chance (e.g. 1/32) of considering an
	// eviction on insert.
	EvictionProbability float64 `json:"evictionProbability"`

	// DeepMaxLoads is the max_loads budget used when the dense cache's
	// batch-load lock is acquired (spec §4.4).
	DeepMaxLoads uint16 `json:"deepMaxLoads"`
	// ShallowMaxLoads is the max_loads budget used when it is not.
	ShallowMaxLoads uint16 `json:"shallowMaxLoads"`
	// LoadItemMaxLoads is the budget used by one-shot load_item calls.
	LoadItemMaxLoads uint16 `json:"loadItemMaxLoads"`

	// DataFileParts is the inverted index's data-file shard count.
	DataFileParts uint8 `json:"dataFileParts"`

	// ChunkSize overrides the chunked serializer's slots-per-chunk (spec §4.9).
	ChunkSize int `json:"chunkSize"`

	// CuckooFilterCapacity sizes the generic typed cache's existence filter.
	CuckooFilterCapacity uint `json:"cuckooFilterCapacity"`
}

// DefaultConfiguration returns the values used when no JSON file overrides them.
func DefaultConfiguration() Configuration {
	return Configuration{
		LRUMinCapacity:       1_000_000,
		LRUMaxCapacity:       100_000_000,
		EvictionProbability:  1.0 / 32.0,
		DeepMaxLoads:         1000,
		ShallowMaxLoads:      1,
		LoadItemMaxLoads:     1000,
		DataFileParts:        8,
		ChunkSize:            256,
		CuckooFilterCapacity: 1_000_000,
	}
}

// LoadConfiguration reads a JSON file into a Configuration, starting from
// DefaultConfiguration so a partial file only overrides the fields it sets.
func LoadConfiguration(filename string) (Configuration, error) {
	c := DefaultConfiguration()
	b, err := os.ReadFile(filename)
	if err != nil {
		return Configuration{}, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return Configuration{}, err
	}
	return c, nil
}
