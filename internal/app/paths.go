package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appDirName      = "carbon"
	dbFileName      = "carbon.db"
	configFileName  = "config.yaml"
	sessionFileName = "session.json"
	storeDirName    = "history"
	backupDirName   = "backups"
)

func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

func DefaultDBPath() (string, error) {
	return inDefaultDir(dbFileName)
}

func DefaultConfigPath() (string, error) {
	return inDefaultDir(configFileName)
}

func DefaultSessionPath() (string, error) {
	return inDefaultDir(sessionFileName)
}

func DefaultStoreRoot() (string, error) {
	return inDefaultDir(storeDirName)
}

func DefaultBackupDir() (string, error) {
	return inDefaultDir(backupDirName)
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func inDefaultDir(name string) (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
