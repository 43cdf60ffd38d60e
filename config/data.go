package config

import (
	"os"
	"path/filepath"
)

// DATA_DIR is the directory where clipflow keeps its local state (pebble
// ledgers and the transcode registry). Defaults to "./data".
var DATA_DIR = getDataDir()

// getDataDir determines the data directory path from environment or default.
// Priority: CLIPFLOW_DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("CLIPFLOW_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the current data directory path.
// The environment is read on every call so tests can point it at a temp dir.
func GetDataDir() string {
	return getDataDir()
}

// GetRegistryDBPath returns the path of the transcode job registry.
// Path: {DATA_DIR}/registry.db
func GetRegistryDBPath() string {
	return filepath.Join(GetDataDir(), "registry.db")
}

// GetFailuresDBPath returns the full path to the failures database.
// The failures database records fatal stage failures by job id or storage key.
// Path: {DATA_DIR}/failures.db
func GetFailuresDBPath() string {
	return filepath.Join(GetDataDir(), "failures.db")
}

// GetSuccessDBPath returns the full path to the success database.
// Path: {DATA_DIR}/success.db
func GetSuccessDBPath() string {
	return filepath.Join(GetDataDir(), "success.db")
}

// GetLocalResultsDir returns the base directory used by the "local" result
// backend. Configurable via CLIPFLOW_RESULTS_DIR; defaults to "./results".
func GetLocalResultsDir() string {
	if dir := os.Getenv("CLIPFLOW_RESULTS_DIR"); dir != "" {
		return dir
	}
	return "./results"
}
