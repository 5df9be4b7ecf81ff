// Package config loads jitc configuration from site files and viper.
//
// Site configuration describes where external libraries (Boost, CUDA, ...)
// live on this host. It is read from two fixed, well-known files:
//
//	/etc/jitc-defaults.yaml   (system level)
//	~/.jitc-defaults.yaml     (user level, overrides system)
//
// String values may reference other keys or environment variables as
// ${NAME}; references expand recursively at load time. A loaded Site is an
// immutable value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// SystemSitePath is the system-level site configuration file.
const SystemSitePath = "/etc/jitc-defaults.yaml"

// UserSitePath returns the user-level site configuration file.
func UserSitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".jitc-defaults.yaml")
}

// Site holds expanded site configuration values.
type Site struct {
	values map[string]any
}

var expandRe = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)

// LoadSite reads and merges the given config files in order (later files
// override earlier ones) and expands all ${NAME} references. Files that do
// not exist are skipped; files that exist but cannot be parsed are an error.
func LoadSite(paths ...string) (*Site, error) {
	values := make(map[string]any)

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); err != nil {
			continue
		}

		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read site config %s: %w", path, err)
		}

		for key, value := range v.AllSettings() {
			values[key] = value
		}
	}

	site := &Site{values: values}
	if err := site.expandAll(); err != nil {
		return nil, err
	}

	return site, nil
}

// DefaultSite loads the two well-known site configuration files.
func DefaultSite() (*Site, error) {
	return LoadSite(SystemSitePath, UserSitePath())
}

var (
	siteMu   sync.Mutex
	siteMemo = make(map[string]*Site)
)

// CachedSite returns a memoized Site for the given file path. The memo is
// keyed on the path, so distinct configs never share an entry.
func CachedSite(path string) (*Site, error) {
	siteMu.Lock()
	defer siteMu.Unlock()

	if s, ok := siteMemo[path]; ok {
		return s, nil
	}

	s, err := LoadSite(path)
	if err != nil {
		return nil, err
	}

	siteMemo[path] = s

	return s, nil
}

// GetString returns the expanded string value for key, or def if unset.
func (s *Site) GetString(key, def string) string {
	if v, ok := s.values[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}

	return def
}

// GetStringSlice returns the expanded string list for key, or nil if unset.
// A scalar string value is returned as a single-element list.
func (s *Site) GetStringSlice(key string) []string {
	v, ok := s.values[key]
	if !ok {
		return nil
	}

	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}

		return out
	case []string:
		return val
	}

	return nil
}

// Has reports whether key is present.
func (s *Site) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *Site) expandAll() error {
	for key, value := range s.values {
		expanded, err := s.expandValue(value, nil)
		if err != nil {
			return fmt.Errorf("failed to expand site config key %s: %w", key, err)
		}

		s.values[key] = expanded
	}

	return nil
}

func (s *Site) expandValue(v any, seen []string) (any, error) {
	switch val := v.(type) {
	case string:
		return s.expandString(val, seen)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := s.expandValue(item, seen)
			if err != nil {
				return nil, err
			}

			out[i] = expanded
		}

		return out, nil
	default:
		return v, nil
	}
}

// expandString substitutes ${NAME} from the config itself first, then from
// the OS environment. Replacement text is expanded again, so references may
// chain; a cycle is an error rather than a hang.
func (s *Site) expandString(value string, seen []string) (string, error) {
	var expandErr error

	result := expandRe.ReplaceAllStringFunc(value, func(match string) string {
		name := expandRe.FindStringSubmatch(match)[1]

		for _, prev := range seen {
			if prev == name {
				expandErr = fmt.Errorf("circular reference to ${%s}", name)
				return match
			}
		}

		repl, ok := s.lookup(name)
		if !ok {
			repl, ok = os.LookupEnv(name)
		}

		if !ok {
			expandErr = fmt.Errorf("undefined variable ${%s} (not in config or environment)", name)
			return match
		}

		expanded, err := s.expandString(repl, append(seen, name))
		if err != nil {
			expandErr = err
			return match
		}

		return expanded
	})

	if expandErr != nil {
		return "", expandErr
	}

	return result, nil
}

func (s *Site) lookup(name string) (string, bool) {
	// viper lowercases keys on load
	for _, key := range []string{name, strings.ToLower(name)} {
		if v, ok := s.values[key]; ok {
			if str, ok := v.(string); ok {
				return str, true
			}
		}
	}

	return "", false
}
