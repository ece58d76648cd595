// Package paths resolves where photofactory keeps its configuration, its
// local store, and locally copied uploads.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user platform directories.
const AppName = "photofactory"

// Directory names used when nothing else is configured.
const (
	DefaultConfigDirName = ".photofactory"
	DefaultDataDirName   = ".photofactory-db"
	UploadDirName        = "uploads"
)

// Environment variables that override directory defaults.
const (
	EnvConfigDir = "PHOTOFACTORY_CONFIG_DIR"
	EnvDataDir   = "PHOTOFACTORY_DATA_DIR"
)

// Env is the slice of the process environment that directory resolution
// reads. System is the real one; tests build their own.
type Env struct {
	GOOS          string
	Getenv        func(string) string
	Getwd         func() (string, error)
	HomeDir       func() (string, error)
	UserConfigDir func() (string, error)
}

// System reads the running process.
var System = Env{
	GOOS:          runtime.GOOS,
	Getenv:        os.Getenv,
	Getwd:         os.Getwd,
	HomeDir:       os.UserHomeDir,
	UserConfigDir: os.UserConfigDir,
}

// DefaultConfigDir is the per-user configuration directory:
// $XDG_CONFIG_HOME/photofactory or ~/.config/photofactory on Linux, the
// platform config directory elsewhere.
func (e Env) DefaultConfigDir() (string, error) {
	return e.platformDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir is the per-user data directory:
// $XDG_DATA_HOME/photofactory or ~/.local/share/photofactory on Linux, the
// platform config directory elsewhere.
func (e Env) DefaultDataDir() (string, error) {
	return e.platformDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func (e Env) platformDir(xdgVar, homeRel string) (string, error) {
	if e.GOOS != "linux" {
		dir, err := e.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := e.Getenv(xdgVar); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := e.HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, homeRel, AppName), nil
}

// ConfigDir resolves the configuration directory:
// flag > PHOTOFACTORY_CONFIG_DIR > DefaultConfigDir.
func (e Env) ConfigDir(flag string) (string, error) {
	if flag != "" {
		return e.abs(flag)
	}
	if env := e.Getenv(EnvConfigDir); env != "" {
		return e.abs(env)
	}
	return e.DefaultConfigDir()
}

// DataDir resolves the data directory:
// flag > data_dir from config.yaml > PHOTOFACTORY_DATA_DIR > ./.photofactory-db.
func (e Env) DataDir(flag, configValue string) (string, error) {
	for _, dir := range []string{flag, configValue, e.Getenv(EnvDataDir)} {
		if dir != "" {
			return e.abs(dir)
		}
	}
	return e.abs(DefaultDataDirName)
}

// abs resolves p against Getwd rather than the process directory.
func (e Env) abs(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	cwd, err := e.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, p), nil
}

// ResolveConfigDir is System.ConfigDir.
func ResolveConfigDir(flag string) (string, error) { return System.ConfigDir(flag) }

// ResolveDataDir is System.DataDir.
func ResolveDataDir(flag, configValue string) (string, error) {
	return System.DataDir(flag, configValue)
}

// UploadDir returns the directory the local uploader copies photos into when
// none is configured.
func UploadDir(dataDir string) string {
	return filepath.Join(dataDir, UploadDirName)
}
