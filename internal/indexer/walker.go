package indexer

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxFileSize is the largest file the walker will read
const DefaultMaxFileSize = 1 << 20 // 1 MiB

// skipDirs are directory names excluded from the walk wherever they appear
var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	"target":       {},
	".venv":        {},
	"venv":         {},
	"dist":         {},
	"build":        {},
	".idea":        {},
	".vscode":      {},
	"third_party":  {},
	"__pycache__":  {},
}

// sourceExtensions are the file types worth indexing for review context
var sourceExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".java": {}, ".kt": {}, ".rb": {}, ".rs": {}, ".c": {}, ".h": {},
	".cc": {}, ".cpp": {}, ".hpp": {}, ".cs": {}, ".php": {}, ".swift": {},
	".scala": {}, ".sh": {}, ".sql": {}, ".proto": {}, ".tf": {},
	".yaml": {}, ".yml": {}, ".toml": {}, ".json": {}, ".md": {},
}

// walkStats counts the walker's decisions for the index job record
type walkStats struct {
	processed int
	skipped   int
}

// walkFn receives one indexable file at a time, path relative to the root
type walkFn func(relPath string, content string) error

// walkTree walks a checked-out repository and yields indexable source
// files. Oversized files, non-source files, binaries, and files with
// ignored suffixes are counted as skipped.
func walkTree(root string, maxFileSize int64, ignoredSuffixes []string, fn walkFn) (walkStats, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	var stats walkStats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !indexableFile(rel, ignoredSuffixes) {
			stats.skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			stats.skipped++
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !utf8.Valid(content) {
			stats.skipped++
			return nil
		}

		if err := fn(rel, string(content)); err != nil {
			return err
		}
		stats.processed++
		return nil
	})
	return stats, err
}

// indexableFile reports whether the relative path names a source file
// that is not excluded by suffix
func indexableFile(relPath string, ignoredSuffixes []string) bool {
	lower := strings.ToLower(relPath)
	for _, suffix := range ignoredSuffixes {
		if suffix != "" && strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return false
		}
	}
	_, ok := sourceExtensions[filepath.Ext(lower)]
	return ok
}
