package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/essmehdi/flowd/internal/config"
)

// compoundExtensions are suffixes treated as a single extension for conflict
// resolution, per spec §4.3.3, so "archive.tar.gz" doesn't get split into a
// stem of "archive.tar" and an extension of ".gz".
var compoundExtensions = []string{
	".tar.gz", ".tar.xz", ".tar.bz2", ".tar.lz", ".tar.lzma", ".tar.lzo", ".tar.lz4", ".tar.Z",
}

// Categorize returns the directory of the first category any of whose
// extensions is a suffix of fileName, per spec §4.3.2. Iteration order over
// a Go map is unspecified; the spec explicitly leaves ties
// implementation-defined.
func Categorize(categories map[string]config.Category, fileName string) (string, bool) {
	for _, cat := range categories {
		for _, ext := range cat.Extensions {
			if strings.HasSuffix(fileName, ext) {
				return cat.Directory, true
			}
		}
	}
	return "", false
}

// OutputPath joins the categorized (or default) directory with fileName.
func OutputPath(cfg config.Config, fileName string) string {
	dir, ok := Categorize(cfg.Categories, fileName)
	if !ok {
		dir = cfg.DefaultDirectory
	}
	return filepath.Join(dir, fileName)
}

// ConflictFreePath returns a path that does not currently exist, derived
// from the candidate by appending " (N)" to its stem with an incrementing N,
// per spec §4.3.3. Idempotent: calling it again on a path it just returned
// (which by construction doesn't yet exist) returns that same path.
func ConflictFreePath(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)

	ext := splitExtension(name)
	stem := strings.TrimSuffix(name, ext)
	stem = stripIndexSuffix(stem)

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}

// splitExtension returns the compound extension if name ends with one of
// the known multi-dot archive suffixes, otherwise the last '.'-delimited
// suffix (filepath.Ext's definition), otherwise "".
func splitExtension(name string) string {
	lower := strings.ToLower(name)
	for _, ce := range compoundExtensions {
		if strings.HasSuffix(lower, strings.ToLower(ce)) {
			return name[len(name)-len(ce):]
		}
	}
	return filepath.Ext(name)
}

// stripIndexSuffix removes a trailing " (N)" (N a positive integer) from
// stem, if present, so re-resolving an already-suffixed name doesn't
// accumulate "(1) (1)".
func stripIndexSuffix(stem string) string {
	if !strings.HasSuffix(stem, ")") {
		return stem
	}
	open := strings.LastIndex(stem, " (")
	if open == -1 {
		return stem
	}
	digits := stem[open+2 : len(stem)-1]
	if digits == "" {
		return stem
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return stem
		}
	}
	if strings.TrimLeft(digits, "0") == "" {
		return stem // N is zero, not a positive integer
	}
	return stem[:open]
}
