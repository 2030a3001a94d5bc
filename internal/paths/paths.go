// Package paths resolves the data, config, and cache roots used by every
// other component, honoring the CFAIT_TEST_DIR override used by tests.
package paths

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPathResolution is returned when no writable root can be located.
var ErrPathResolution = errors.New("cfait: could not resolve a writable path root")

// Paths exposes the three resolved roots and derived file paths, mirroring
// original_source/src/paths.rs's AppPaths.
type Paths struct {
	DataDir   string
	ConfigDir string
	CacheDir  string
}

// Resolve determines the three roots. CFAIT_TEST_DIR, if set, collapses all
// three onto one directory (the test harness hook named in spec §6).
func Resolve() (*Paths, error) {
	if testDir := os.Getenv("CFAIT_TEST_DIR"); testDir != "" {
		p := &Paths{DataDir: testDir, ConfigDir: testDir, CacheDir: testDir}
		if err := p.ensureAll(); err != nil {
			return nil, err
		}
		return p, nil
	}

	dataDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPathResolution, err)
	}
	configDir, cerr := os.UserConfigDir()
	if cerr != nil {
		configDir = dataDir
	}
	cacheDir, kerr := os.UserCacheDir()
	if kerr != nil {
		cacheDir = dataDir
	}

	p := &Paths{
		DataDir:   filepath.Join(dataDir, ".local", "share", "cfait"),
		ConfigDir: filepath.Join(configDir, "cfait"),
		CacheDir:  filepath.Join(cacheDir, "cfait"),
	}
	if err := p.ensureAll(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Paths) ensureAll() error {
	for _, dir := range []string{p.DataDir, p.ConfigDir, p.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrPathResolution, err)
		}
	}
	return nil
}

// ConfigFile returns the path to config.toml.
func (p *Paths) ConfigFile() string { return filepath.Join(p.ConfigDir, "config.toml") }

// JournalFile returns the path to journal.json.
func (p *Paths) JournalFile() string { return filepath.Join(p.DataDir, "journal.json") }

// LocalCalendarsFile returns the path to the non-default local calendar registry.
func (p *Paths) LocalCalendarsFile() string { return filepath.Join(p.DataDir, "local_calendars.json") }

// RemoteCalendarsFile returns the path to the cached remote calendar list.
func (p *Paths) RemoteCalendarsFile() string { return filepath.Join(p.DataDir, "calendars.json") }

// AlarmIndexFile returns the path to the alarm index.
func (p *Paths) AlarmIndexFile() string { return filepath.Join(p.DataDir, "alarm_index.json") }

// LocalTaskFile returns the per-local-calendar snapshot path. The default
// calendar "local://default" maps to local.json; every other local id is
// sanitized into local_<id>.json.
func (p *Paths) LocalTaskFile(localID string) string {
	if localID == "" || localID == "default" {
		return filepath.Join(p.DataDir, "local.json")
	}
	return filepath.Join(p.DataDir, "local_"+sanitize(localID)+".json")
}

// RemoteCacheFile returns the per-remote-calendar cache path, keyed by a
// short hex hash of the calendar href (spec §4.1, §4.5).
func (p *Paths) RemoteCacheFile(calendarHref string) string {
	return filepath.Join(p.CacheDir, "tasks_"+hashHref(calendarHref)+".json")
}

func hashHref(href string) string {
	sum := sha1.Sum([]byte(href))
	return hex.EncodeToString(sum[:])[:12]
}

func sanitize(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
