package bufman

import (
	"os"
	"path/filepath"
	"testing"

	veccache "github.com/sharedcode/veccache"
)

func TestFactory_GetCachesPerVersion(t *testing.T) {
	dir := t.TempDir()
	f := NewFactory(dir, "nodes.%s.dat")

	v := veccache.NewVersionID()
	m1, err := f.Get(v)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m2, err := f.Get(v)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m1 != m2 {
		t.Fatalf("expected the same Manager instance for repeated Get calls on one version")
	}

	path := filepath.Join(dir, "nodes."+v.String()+".dat")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected backing file to exist at %s: %v", path, err)
	}

	if err := f.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
}
