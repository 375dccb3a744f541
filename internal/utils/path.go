package utils

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
)

// AppDir is the directory name used under the platform config root.
const AppDir = "docserve"

// PathResolver locates document files, snapshots and config files relative
// to the working directory, the executable and the user config dir.
type PathResolver struct {
	executableDir string
	homeDir       string
	configDir     string
}

// NewPathResolver creates a new path resolver that determines the executable location
func NewPathResolver() (*PathResolver, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	// symlinked installs should resolve next to the real binary
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}

	pr := &PathResolver{
		executableDir: filepath.Dir(execPath),
		homeDir:       homeDir,
		configDir:     configDirFor(homeDir),
	}
	log.Debugf("PathResolver initialized: execDir=%s, configDir=%s", pr.executableDir, pr.configDir)
	return pr, nil
}

// configDirFor returns the platform config directory for docserve.
func configDirFor(homeDir string) string {
	switch runtime.GOOS {
	case "linux":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, AppDir)
		}
		return filepath.Join(homeDir, ".config", AppDir)
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppDir)
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppDir)
	default:
		return filepath.Join(homeDir, ".config", AppDir)
	}
}

// Candidates lists where a user supplied path is looked up, in order:
// as given when absolute, the working dir, the executable dir, the config dir.
func (pr *PathResolver) Candidates(path string) []string {
	if filepath.IsAbs(path) {
		return []string{path}
	}
	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, path))
	}
	return append(candidates,
		filepath.Join(pr.executableDir, path),
		filepath.Join(pr.configDir, path),
	)
}

// Resolve returns the first existing candidate for path. When none exists
// it returns path relative to the working dir, so errors name the path the
// user most likely meant.
func (pr *PathResolver) Resolve(path string) (string, bool) {
	candidates := pr.Candidates(path)
	for _, candidate := range candidates {
		if FileExists(candidate) {
			log.Debugf("Resolved %s to %s", path, candidate)
			return candidate, true
		}
		log.Debugf("Path candidate not found: %s", candidate)
	}
	return candidates[0], false
}

// GetConfigPath returns the path for a config file, falling back to other
// writable directories when the config dir cannot be written.
func (pr *PathResolver) GetConfigPath(filename string) string {
	dirs := []string{
		pr.configDir,
		filepath.Join(pr.homeDir, "."+AppDir),
		filepath.Join(os.TempDir(), AppDir),
		pr.executableDir,
	}
	for i, dir := range dirs {
		if CheckDirStatus(dir).Writable {
			path := filepath.Join(dir, filename)
			if i > 0 {
				log.Warnf("Using fallback config location: %s", path)
			}
			return path
		}
	}
	tempPath := filepath.Join(os.TempDir(), filename)
	log.Warnf("Using temporary config file: %s", tempPath)
	return tempPath
}

// GetConfigDir returns the config directory
func (pr *PathResolver) GetConfigDir() string {
	return pr.configDir
}
