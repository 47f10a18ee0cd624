package imaging

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestEncodeRoundTrip(t *testing.T) {
	data := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	path := writeFile(t, "photo.png", data)

	encoded, err := Encode(path)
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestEncodeMissingFile(t *testing.T) {
	_, err := Encode(filepath.Join(t.TempDir(), "nope.png"))

	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "file not found")
}

func TestEncodeUnsupportedType(t *testing.T) {
	for _, name := range []string{"doc.txt", "archive.tar.gz", "noext"} {
		path := writeFile(t, name, []byte("not an image"))

		_, err := Encode(path)

		var perr *ProcessingError
		require.ErrorAs(t, err, &perr, "expected ProcessingError for %s", name)
		assert.Contains(t, perr.Error(), "unsupported file type")
	}
}

func TestEncodeTooLarge(t *testing.T) {
	path := writeFile(t, "big.jpg", make([]byte, 2048))

	enc := NewEncoder(1024, nil)
	_, err := enc.Encode(path)

	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "file too large")
}

func TestEncodeSizeAtCeiling(t *testing.T) {
	path := writeFile(t, "exact.gif", make([]byte, 1024))

	enc := NewEncoder(1024, nil)
	encoded, err := enc.Encode(path)
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Len(t, decoded, 1024)
}

func TestEncoderCustomAllowList(t *testing.T) {
	path := writeFile(t, "pic.webp", []byte{1, 2, 3})

	enc := NewEncoder(0, []string{"image/png"})
	_, err := enc.Encode(path)
	assert.Error(t, err)

	enc = NewEncoder(0, []string{"image/webp"})
	_, err = enc.Encode(path)
	assert.NoError(t, err)
}

func TestDetectMIMEType(t *testing.T) {
	cases := map[string]string{
		"a.jpg":  "image/jpeg",
		"a.JPEG": "image/jpeg",
		"a.png":  "image/png",
		"a.gif":  "image/gif",
		"a.webp": "image/webp",
		"a":      "",
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectMIMEType(path), "path %q", path)
	}
}
