package allocator

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"
)

// configSchemaVersion is the schema this build understands. Config files
// declare the version they were written against; Validate rejects a file
// whose version falls outside the supported constraint instead of
// guessing at field meanings.
const configSchemaVersion = "1.x"

// Config holds the tunables a heap manager reads at startup and, for the
// fields marked hot-reloadable below, while running. It is read from a
// JSON file rather than flags or environment variables because the
// reference design treats configuration as something an operator edits
// and reloads without restarting the process (spec.md §9, Design Notes).
type Config struct {
	SchemaVersion string `json:"schema_version"`

	// SpeculativeTries overrides SPECULATIVE_TRIES. Hot-reloadable.
	SpeculativeTries int `json:"speculative_tries"`

	// ReserveBytes bounds the virtual address range the break source
	// commits to up front. Not hot-reloadable: changing it would require
	// re-creating the arena under regions already handed out.
	ReserveBytes uintptr `json:"reserve_bytes"`

	// UseMmapArena selects mmapBreakSource over the portable slice-backed
	// one. Only meaningful on unix build targets; see arena_unix.go.
	UseMmapArena bool `json:"use_mmap_arena"`

	// DiagAddr is the UDP address the HTTP/3 diagnostics server listens
	// on, e.g. "127.0.0.1:0" for an ephemeral port. Empty disables it.
	DiagAddr string `json:"diag_addr"`
}

// defaultConfig mirrors the zero-value behavior of New/newDefaultBreakSource.
func defaultConfig() Config {
	return Config{
		SchemaVersion:    configSchemaVersion,
		SpeculativeTries: defaultSpeculativeTries,
		ReserveBytes:     defaultReserveSize,
	}
}

// LoadConfig reads and validates a JSON config file. On any I/O or parse
// error it returns the default config alongside the error, so callers
// that want to run a report rather than fail hard can still do so.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("allocator: read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("allocator: parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the config's declared schema version against the
// version this build supports, using a semver constraint rather than a
// string-equality check so additive (patch/minor) schema changes do not
// force every deployed config file to be rewritten.
func (c Config) Validate() error {
	constraint, err := semver.NewConstraint(configSchemaVersion)
	if err != nil {
		return fmt.Errorf("allocator: internal schema constraint %q: %w", configSchemaVersion, err)
	}

	declared, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return fmt.Errorf("allocator: config schema_version %q: %w", c.SchemaVersion, err)
	}

	if !constraint.Check(declared) {
		return fmt.Errorf("allocator: config schema_version %s does not satisfy %s", declared, configSchemaVersion)
	}

	if c.SpeculativeTries < 0 {
		return fmt.Errorf("allocator: speculative_tries must be >= 0, got %d", c.SpeculativeTries)
	}

	return nil
}

// Apply pushes the hot-reloadable fields of c onto a running manager. It
// never touches the break source or arena, since those are fixed at
// construction time.
func (c Config) Apply(h *HeapManager) {
	atomic.StoreInt32(&h.cfgTries, int32(c.SpeculativeTries))
}

// NewBreakSource builds the BreakSource c describes: an mmap-backed arena
// on unix targets when UseMmapArena is set, falling back to the portable
// slice-backed arena otherwise (including when mmap is requested on a
// platform that cannot provide it).
func (c Config) NewBreakSource() (BreakSource, error) {
	reserve := c.ReserveBytes
	if reserve == 0 {
		reserve = defaultReserveSize
	}

	if c.UseMmapArena {
		if src, err := NewMmapBreakSource(reserve); err == nil {
			return src, nil
		}
	}

	return NewSliceBreakSource(reserve), nil
}

// configWatcher applies config file changes to a HeapManager as they
// happen, using fsnotify the same way the runtime's virtual filesystem
// watches OS-native notifications for changed paths.
type configWatcher struct {
	w    *fsnotify.Watcher
	done chan struct{}
}

// WatchConfig reloads path into h every time the file changes on disk.
// Parse or validation failures during a reload are dropped rather than
// applied, leaving h on its last-known-good config; the caller can
// inspect those failures through the returned channel. Closing the
// returned watcher stops the reload loop.
func WatchConfig(path string, h *HeapManager) (*configWatcher, <-chan error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("allocator: watch config %s: %w", path, err)
	}

	if err := w.Add(path); err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("allocator: watch config %s: %w", path, err)
	}

	errC := make(chan error, 1)
	cw := &configWatcher{w: w, done: make(chan struct{})}

	go cw.loop(path, h, errC)

	return cw, errC, nil
}

func (cw *configWatcher) loop(path string, h *HeapManager, errC chan<- error) {
	defer close(cw.done)

	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := LoadConfig(path)
			if err != nil {
				select {
				case errC <- err:
				default:
				}

				continue
			}

			cfg.Apply(h)
		case err, ok := <-cw.w.Errors:
			if !ok {
				return
			}

			select {
			case errC <- err:
			default:
			}
		}
	}
}

// Close stops the watch loop and releases the underlying OS watch.
func (cw *configWatcher) Close() error {
	err := cw.w.Close()
	<-cw.done

	return err
}
