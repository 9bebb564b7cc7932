package render

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flopp/go-findfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Source provides raw TrueType/OpenType data for a font family.
// Lookup returns ErrFontNotFound when the source does not carry the family.
type Source interface {
	Name() string
	Lookup(family string) ([]byte, error)
}

// fontExtensions lists the file types DirSource and SystemSource accept.
var fontExtensions = []string{".ttf", ".otf"}

// FamilyKey returns the name under which family is cached and looked up.
// Two family names refer to the same font when their keys are equal.
func FamilyKey(family string) string { return normalizeFamily(family) }

// normalizeFamily maps "DejaVu Sans", "dejavu-sans" and "DejaVuSans" to one key.
func normalizeFamily(family string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(family) {
		switch r {
		case ' ', '-', '_', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var builtinFonts = map[string]struct {
	name string
	data []byte
}{
	"goregular":    {"GoRegular", goregular.TTF},
	"gobold":       {"GoBold", gobold.TTF},
	"goitalic":     {"GoItalic", goitalic.TTF},
	"gobolditalic": {"GoBoldItalic", gobolditalic.TTF},
	"gomedium":     {"GoMedium", gomedium.TTF},
	"gomono":       {"GoMono", gomono.TTF},
	"gomonobold":   {"GoMonoBold", gomonobold.TTF},
}

// BuiltinFamilies returns the families compiled into the binary.
func BuiltinFamilies() []string {
	names := make([]string, 0, len(builtinFonts))
	for _, f := range builtinFonts {
		names = append(names, f.name)
	}
	sort.Strings(names)
	return names
}

// BuiltinSource serves the Go font family embedded by golang.org/x/image.
type BuiltinSource struct{}

func (BuiltinSource) Name() string { return "builtin" }

func (BuiltinSource) Lookup(family string) ([]byte, error) {
	f, ok := builtinFonts[normalizeFamily(family)]
	if !ok {
		return nil, ErrFontNotFound
	}
	return f.data, nil
}

// DefaultRescanInterval is the minimum time between two directory scans
// triggered by lookups of unknown families.
const DefaultRescanInterval = time.Minute

// DirSource serves font files found under a fixed set of directories.
// The directories are indexed on first lookup and re-indexed when a family
// is missing and the index is older than RescanInterval, so fonts copied in
// later are found. Files are matched by base name: "DejaVuSans.ttf" serves
// the family "DejaVu Sans".
type DirSource struct {
	dirs []string
	log  *slog.Logger

	// RescanInterval rate-limits re-indexing on misses. Zero re-indexes on
	// every miss. Set it before the first lookup.
	RescanInterval time.Duration

	mu        sync.Mutex
	index     map[string]string
	indexedAt time.Time
}

// NewDirSource creates a DirSource. Missing directories are skipped.
func NewDirSource(log *slog.Logger, dirs ...string) *DirSource {
	if log == nil {
		log = slog.Default()
	}
	return &DirSource{
		dirs:           dirs,
		log:            log.With("component", "font_dir_source"),
		RescanInterval: DefaultRescanInterval,
	}
}

func (s *DirSource) Name() string { return "dirs" }

func (s *DirSource) Lookup(family string) ([]byte, error) {
	key := normalizeFamily(family)

	s.mu.Lock()
	fresh := s.index == nil
	if fresh {
		s.buildIndex()
	}
	path, ok := s.index[key]
	if !ok && !fresh && time.Since(s.indexedAt) >= s.RescanInterval {
		s.buildIndex()
		path, ok = s.index[key]
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrFontNotFound
	}
	return os.ReadFile(path)
}

// Families lists the font files found in the directories by base name.
func (s *DirSource) Families() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		s.buildIndex()
	}
	out := make([]string, 0, len(s.index))
	for _, path := range s.index {
		base := filepath.Base(path)
		out = append(out, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	sort.Strings(out)
	return out
}

func (s *DirSource) buildIndex() {
	s.index = make(map[string]string)
	for _, dir := range s.dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !hasFontExtension(path) {
				return nil
			}
			key := normalizeFamily(strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())))
			if _, seen := s.index[key]; !seen {
				s.index[key] = path
			}
			return nil
		})
		if err != nil {
			s.log.Debug("Skipping font directory", "dir", dir, "error", err)
		}
	}
	s.indexedAt = time.Now()
	s.log.Debug("Indexed font directories", "dirs", s.dirs, "fonts", len(s.index))
}

// SystemSource looks fonts up in the platform font directories.
type SystemSource struct{}

func (SystemSource) Name() string { return "system" }

func (SystemSource) Lookup(family string) ([]byte, error) {
	key := normalizeFamily(family)
	for _, ext := range fontExtensions {
		path, err := findfont.Find(strings.ReplaceAll(family, " ", "") + ext)
		if err != nil {
			continue
		}
		// findfont falls back to substring matches; accept exact names only.
		base := filepath.Base(path)
		if normalizeFamily(strings.TrimSuffix(base, filepath.Ext(base))) != key {
			continue
		}
		return os.ReadFile(path)
	}
	return nil, ErrFontNotFound
}

func hasFontExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range fontExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
