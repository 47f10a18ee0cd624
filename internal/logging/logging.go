package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// New opens the application log under ~/.visionchat and returns a logger
// writing to it. The terminal belongs to the TUI, so logs never go to
// stdout. The returned closer flushes and closes the log file.
func New(verbose bool) (zerolog.Logger, io.Closer, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, ".visionchat")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(logDir, "visionchat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(file).Level(level).With().Timestamp().Logger()
	return logger, file, nil
}
