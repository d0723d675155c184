package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()
	ups, err := fs.Glob(FS, "*_up.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no embedded up migrations")
	}
	for _, up := range ups {
		b, err := fs.ReadFile(FS, up)
		if err != nil {
			t.Fatalf("read %s: %v", up, err)
		}
		if len(b) == 0 {
			t.Fatalf("%s is empty", up)
		}
		down := strings.TrimSuffix(up, "_up.sql") + "_down.sql"
		if _, err := fs.ReadFile(FS, down); err != nil {
			t.Fatalf("missing down migration for %s: %v", up, err)
		}
	}
}
