package fixture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of parsed fixtures kept by a Loader.
const DefaultCacheSize = 1024

// Loader reads and parses fixtures, caching parse results by path and
// content hash. Safe for concurrent use.
type Loader struct {
	cache *lru.Cache[string, *Fixture]
}

// NewLoader creates a loader holding at most size parsed fixtures.
func NewLoader(size int) (*Loader, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Fixture](size)
	if err != nil {
		return nil, fmt.Errorf("fixture cache: %w", err)
	}
	return &Loader{cache: cache}, nil
}

// Load reads path and returns its parsed fixture. An unchanged file is
// served from the cache.
func (l *Loader) Load(path string) (*Fixture, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return l.LoadSource(path, src)
}

// LoadSource parses src as the fixture at path.
func (l *Loader) LoadSource(path string, src []byte) (*Fixture, error) {
	sum := sha256.Sum256(src)
	key := path + "\x00" + hex.EncodeToString(sum[:])
	if f, ok := l.cache.Get(key); ok {
		return f, nil
	}

	f, err := Parse(path, src)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, f)
	return f, nil
}

// Len returns the number of cached fixtures.
func (l *Loader) Len() int {
	return l.cache.Len()
}

// LoadAll loads every path and returns one fixture per path, in order. A
// file that fails to read or parse becomes an Unloadable placeholder so
// the rest still run.
func (l *Loader) LoadAll(paths []string) []*Fixture {
	out := make([]*Fixture, len(paths))
	for i, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			out[i] = Unloadable(p, nil, fmt.Errorf("failed to read fixture: %w", err))
			continue
		}
		f, err := l.LoadSource(p, src)
		if err != nil {
			out[i] = Unloadable(p, src, err)
			continue
		}
		out[i] = f
	}
	return out
}

// Unloadable returns the placeholder fixture for a path that failed to
// load with err. src may be nil when the file could not be read.
func Unloadable(path string, src []byte, err error) *Fixture {
	lang, _ := LangForPath(path)
	f := &Fixture{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Lang:    lang,
		Source:  src,
		LoadErr: err,
	}
	if src != nil {
		sum := sha256.Sum256(src)
		f.Hash = hex.EncodeToString(sum[:])
	}
	return f
}
