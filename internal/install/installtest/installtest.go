// Package installtest builds installations and packages on disk for tests.
package installtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/pelletier/go-toml/v2"

	"github.com/adamancini/hatch/internal/install"
)

// ExeScript is a main executable that does nothing.
const ExeScript = "#!/bin/sh\nexit 0\n"

// Manifest returns a manifest for app id at version with main exe "app".
func Manifest(id, version string) *install.Manifest {
	return &install.Manifest{ID: id, Version: version, MainExe: "app"}
}

// WritePackage writes a zip package at path containing the manifest and
// files. The main executable gets ExeScript unless files provides it.
func WritePackage(t testing.TB, path string, m *install.Manifest, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create package: %v", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)

	data, err := toml.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	writeEntry(t, zw, install.ManifestFile, string(data), 0o644)

	if _, ok := files[m.MainExe]; !ok && m.MainExe != "" {
		writeEntry(t, zw, m.MainExe, ExeScript, 0o755)
	}
	for name, content := range files {
		mode := os.FileMode(0o644)
		if name == m.MainExe {
			mode = 0o755
		}
		writeEntry(t, zw, name, content, mode)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close package: %v", err)
	}
}

// NewInstall lays out an installation of m in a temporary directory.
func NewInstall(t testing.TB, m *install.Manifest) *install.Locator {
	t.Helper()

	src := t.TempDir()
	exe := filepath.Join(src, m.MainExe)
	if err := os.WriteFile(exe, []byte(ExeScript), 0o755); err != nil {
		t.Fatalf("write main exe: %v", err)
	}

	loc, err := install.Initialize(filepath.Join(t.TempDir(), "root"), m, src)
	if err != nil {
		t.Fatalf("initialize install: %v", err)
	}
	return loc
}

func writeEntry(t testing.TB, zw *zip.Writer, name, content string, mode os.FileMode) {
	t.Helper()

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	hdr.SetMode(mode)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		t.Fatalf("create entry %s: %v", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("write entry %s: %v", name, err)
	}
}
