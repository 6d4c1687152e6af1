package httpapi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNoStorageBackendImports keeps handlers on the service surface.
func TestNoStorageBackendImports(t *testing.T) {
	forbidden := []string{
		"\"engagement/internal/infra/",
		"\"engagement/internal/docstore",
		"\"engagement/internal/config\"",
	}
	err := filepath.WalkDir(".", func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		// #nosec G304: paths provided by WalkDir within the package.
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		for _, f := range forbidden {
			if strings.Contains(string(data), f) {
				t.Fatalf("production file %s must not import %s", path, f)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk imports: %v", err)
	}
}
