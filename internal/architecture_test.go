package internal_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestParsingLayerImportRestrictions ensures the line-level parsing
// packages stay free of persistence and orchestration concerns.
func TestParsingLayerImportRestrictions(t *testing.T) {
	forbiddenPrefixes := []string{
		"loottrack/internal/collector", // Orchestration sits above parsing
		"loottrack/internal/database",  // Parsers never touch storage
		"loottrack/internal/config",    // Thresholds are passed in, not read
	}

	for _, dir := range []string{"./events", "./tail", "./pricing"} {
		checkImports(t, dir, nil, forbiddenPrefixes)
	}
}

// TestStateMachineImportRestrictions ensures the delta and run state
// machines depend only on the shared types and parsed events.
func TestStateMachineImportRestrictions(t *testing.T) {
	allowedPrefixes := []string{
		"loottrack/internal/database", // Shared row types
		"loottrack/internal/events",   // Parsed event types
		"loottrack/internal/log",
		"github.com/",
		"golang.org/",
	}

	forbiddenPrefixes := []string{
		"loottrack/internal/collector",
		"loottrack/internal/tail",
		"loottrack/internal/pricing",
	}

	for _, dir := range []string{"./ledger", "./runs"} {
		checkImports(t, dir, allowedPrefixes, forbiddenPrefixes)
	}
}

// TestDatabaseImportRestrictions ensures the storage layer is a leaf.
func TestDatabaseImportRestrictions(t *testing.T) {
	forbiddenPrefixes := []string{
		"loottrack/internal/", // No internal imports at all
	}

	checkImports(t, "./database", nil, forbiddenPrefixes)
}

func checkImports(t *testing.T, packageDir string, allowedPrefixes, forbiddenPrefixes []string) {
	err := filepath.Walk(packageDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			t.Errorf("Failed to parse %s: %v", path, err)
			return nil
		}

		for _, imp := range node.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)

			// Skip standard library and third-party imports
			if !strings.Contains(importPath, "loottrack/internal") {
				continue
			}

			// Check forbidden imports
			for _, forbidden := range forbiddenPrefixes {
				if strings.HasPrefix(importPath, forbidden) {
					t.Errorf("FORBIDDEN import in %s: %s", path, importPath)
				}
			}

			// Check allowed imports (if specified)
			if len(allowedPrefixes) > 0 {
				allowed := false
				for _, prefix := range allowedPrefixes {
					if strings.HasPrefix(importPath, prefix) {
						allowed = true
						break
					}
				}
				if !allowed {
					t.Errorf("DISALLOWED import in %s: %s (not in allowed list)", path, importPath)
				}
			}
		}

		return nil
	})

	if err != nil {
		t.Errorf("Failed to walk directory %s: %v", packageDir, err)
	}
}
