package fixture

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the fixture file extensions picked up by Discover.
var DefaultExtensions = []string{".js", ".ts", ".tsx"}

// DiscoverOptions controls fixture discovery.
type DiscoverOptions struct {
	// Extensions to include. Defaults to DefaultExtensions.
	Extensions []string
	// Filter is a glob matched against the file name without extension.
	Filter string
}

// Discover walks each root and returns fixture paths in sorted order.
// A root may also be a single file. Hidden directories and golden/
// directories are skipped.
func Discover(roots []string, opts DiscoverOptions) ([]string, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", opts.Filter, err)
		}
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("fixture root %s: %w", root, err)
		}
		if !info.IsDir() {
			if matches(root, exts, opts.Filter) {
				add(root)
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != root && (strings.HasPrefix(name, ".") || name == "golden" || name == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if matches(path, exts, opts.Filter) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

func matches(path string, exts []string, filter string) bool {
	ext := filepath.Ext(path)
	if strings.HasSuffix(path, ".d.ts") {
		return false
	}
	ok := false
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	if filter == "" {
		return true
	}
	name := strings.TrimSuffix(filepath.Base(path), ext)
	matched, _ := filepath.Match(filter, name)
	return matched
}
