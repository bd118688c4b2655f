package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for clawd's persisted state.
type Paths struct {
	Data   string // ~/.local/share/clawd
	Config string // ~/.config/clawd
	Cache  string // ~/.cache/clawd
	State  string // ~/.local/state/clawd
}

// GetPaths returns the standard paths, honoring CLAWD_DATA_DIR for Data and
// XDG_* env vars for the rest.
func GetPaths() *Paths {
	dataDir := os.Getenv("CLAWD_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "clawd")
	}
	return &Paths{
		Data:   dataDir,
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "clawd"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "clawd"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "clawd"),
	}
}

// EnsurePaths creates all required directories, including the nested
// worktree/task/pack/log layout.
func (p *Paths) EnsurePaths() error {
	dirs := []string{
		p.Data, p.Config, p.Cache, p.State,
		p.LogsDir(), p.PacksDir(),
		filepath.Join(p.Data, ".claw", "worktrees"),
		filepath.Join(p.Data, "tasks"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoreFile returns the path to the single SQLite store file.
func (p *Paths) StoreFile() string {
	return filepath.Join(p.Data, "clawd.db")
}

// AuthTokenPath returns the path to the shared-secret token file, written
// with mode 0600 since it gates daemon.auth.
func (p *Paths) AuthTokenPath() string {
	return filepath.Join(p.Data, "auth.token")
}

// LogsDir returns the directory log files are written to.
func (p *Paths) LogsDir() string {
	return filepath.Join(p.Data, "logs")
}

// PacksDir returns the directory installed packs live under.
func (p *Paths) PacksDir() string {
	return filepath.Join(p.Data, "packs")
}

// WorktreesDir returns a task's dedicated worktree directory.
func (p *Paths) WorktreesDir(taskID string) string {
	return filepath.Join(p.Data, ".claw", "worktrees", taskID)
}

// TaskDir returns the directory a task's event log and checkpoints live in.
func (p *Paths) TaskDir(taskID string) string {
	return filepath.Join(p.Data, "tasks", taskID)
}

// TaskEventLogPath returns the path to a task's append-only event log.
func (p *Paths) TaskEventLogPath(taskID string) string {
	return filepath.Join(p.TaskDir(taskID), "events.jsonl")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "clawd.json")
}

// ProjectConfigPath returns the path to a repo's project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".clawd", "clawd.json")
}
