package imaging

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultMaxBytes is the largest image accepted for encoding.
	DefaultMaxBytes = 10 * 1024 * 1024
)

// DefaultAllowedTypes lists the MIME types the model server accepts.
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// ProcessingError is returned when an image cannot be prepared for sending.
type ProcessingError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Encoder validates and base64-encodes local image files.
// The zero value is not usable; use NewEncoder.
type Encoder struct {
	maxBytes     int64
	allowedTypes map[string]struct{}
}

// NewEncoder creates an encoder with the given size ceiling and MIME
// allow-list. A maxBytes of 0 or an empty allow-list falls back to the
// package defaults.
func NewEncoder(maxBytes int64, allowedTypes []string) *Encoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &Encoder{maxBytes: maxBytes, allowedTypes: allowed}
}

// Encode reads the image at path and returns its contents base64-encoded.
// It returns a *ProcessingError when the file is missing, the MIME type
// cannot be determined or is not allowed, the file exceeds the size
// ceiling, or the read fails. There are no partial results.
func (e *Encoder) Encode(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ProcessingError{Path: path, Reason: fmt.Sprintf("file not found: %s", path)}
		}
		return "", &ProcessingError{Path: path, Reason: fmt.Sprintf("cannot access %s", path), Err: err}
	}

	mimeType := DetectMIMEType(path)
	if _, ok := e.allowedTypes[mimeType]; mimeType == "" || !ok {
		return "", &ProcessingError{Path: path, Reason: fmt.Sprintf("unsupported file type: %s", mimeType)}
	}

	if info.Size() > e.maxBytes {
		return "", &ProcessingError{
			Path:   path,
			Reason: fmt.Sprintf("file too large: images must be smaller than %dMB", e.maxBytes/1024/1024),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ProcessingError{Path: path, Reason: fmt.Sprintf("failed to read %s", path), Err: err}
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// MaxBytes returns the encoder's size ceiling.
func (e *Encoder) MaxBytes() int64 {
	return e.maxBytes
}

// Encode encodes path using the default limits.
func Encode(path string) (string, error) {
	return NewEncoder(0, nil).Encode(path)
}

// DetectMIMEType guesses a file's MIME type from its extension. Returns ""
// when no type can be determined.
func DetectMIMEType(path string) string {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		return ""
	}
	// Strip any parameters like "; charset=utf-8".
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = mimeType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(mimeType))
}
