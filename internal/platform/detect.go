package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "voxapi"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (r Runtime) String() string {
	return r.OS + "/" + r.Arch
}

// DataDirFor returns the per-user data directory for goos. env looks up
// environment variables so callers can test without touching the process env.
func DataDirFor(goos, homeDir string, env func(string) string) (string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		if xdg := env("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		if homeDir == "" {
			return "", errors.New("home directory is empty")
		}
		return filepath.Join(homeDir, ".local", "share", appName), nil
	case "darwin":
		if homeDir == "" {
			return "", errors.New("home directory is empty")
		}
		return filepath.Join(homeDir, "Library", "Application Support", appName), nil
	case "windows":
		if local := env("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName), nil
		}
		return "", errors.New("LOCALAPPDATA is not set")
	default:
		return "", fmt.Errorf("unsupported OS: %s", goos)
	}
}

func DefaultModelDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil && runtime.GOOS != "windows" {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	dataDir, err := DataDirFor(runtime.GOOS, homeDir, os.Getenv)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "models"), nil
}
