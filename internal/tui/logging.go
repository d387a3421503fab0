package tui

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// OpenLogFile opens path for appending and returns a logger writing to it.
// The caller closes the returned file.
func OpenLogFile(path string) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, "[mailsync] ", log.LstdFlags|log.Lmicroseconds), f, nil
}
