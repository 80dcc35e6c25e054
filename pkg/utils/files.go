package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	parentDir = filepath.Dir(fullPath)
	return fullPath, parentDir, nil
}

// DecodeSource normalizes program text to UTF-8. A UTF-8 or UTF-16 byte
// order mark selects the encoding and is removed; without one the input
// is taken as UTF-8.
func DecodeSource(raw []byte) ([]byte, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return nil, fmt.Errorf("decoding source: %w", err)
	}
	return out, nil
}

// ReadSource reads a program file, or standard input when path is "-".
func ReadSource(path string) ([]byte, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		full, _, err := GetPathInfo(path)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return DecodeSource(raw)
}
