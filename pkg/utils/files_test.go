package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDecodeSource(t *testing.T) {
	want := `{"declare":"x","value":1}`
	utf16le := []byte{0xFF, 0xFE}
	for _, r := range want {
		utf16le = append(utf16le, byte(r), 0)
	}
	tests := []struct {
		name string
		raw  []byte
	}{
		{"plain", []byte(want)},
		{"utf-8 bom", append([]byte{0xEF, 0xBB, 0xBF}, want...)},
		{"utf-16le bom", utf16le},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeSource(tc.raw)
			if err != nil {
				t.Fatalf("DecodeSource failed: %v", err)
			}
			if string(got) != want {
				t.Errorf("DecodeSource = %q, want %q", got, want)
			}
		})
	}
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.json")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBF[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSource(path)
	if err != nil {
		t.Fatalf("ReadSource failed: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("ReadSource = %q, want []", got)
	}
	if _, err := ReadSource(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("ReadSource of a missing file succeeded")
	}
}

func TestGetPathInfo(t *testing.T) {
	full, parent, err := GetPathInfo("a/b/c.json")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(full) || filepath.Base(full) != "c.json" || filepath.Base(parent) != "b" {
		t.Errorf("GetPathInfo = %q, %q", full, parent)
	}
}
