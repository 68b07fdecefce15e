package workspace

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCopyProjectFiles_CopiesMatchingFiles(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	writeTestFile(t, filepath.Join(source, "config", "app.env"), []byte("FOO=bar\n"))
	writeTestFile(t, filepath.Join(source, "src", "main.go"), []byte("package main\n"))

	if err := CopyProjectFiles(source, target, []string{"config/*.env"}); err != nil {
		t.Fatalf("CopyProjectFiles: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "config", "app.env")); err != nil {
		t.Errorf("expected app.env copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "src", "main.go")); !os.IsNotExist(err) {
		t.Errorf("main.go should not have been copied, stat err = %v", err)
	}
}

func TestCopyProjectFiles_NeverOverwritesEqualSizeDestination(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	writeTestFile(t, filepath.Join(source, "config", "app.env"), []byte("FOO=bar\n"))
	writeTestFile(t, filepath.Join(target, "config", "app.env"), []byte("FOO=baz\n"))

	if err := CopyProjectFiles(source, target, []string{"config/*.env"}); err != nil {
		t.Fatalf("CopyProjectFiles: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(target, "config", "app.env"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, []byte("FOO=baz\n")) {
		t.Errorf("destination of equal size was overwritten: %q", content)
	}
}

func TestCopyProjectFiles_OverwritesWhenSizeDiffers(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	writeTestFile(t, filepath.Join(source, "config", "app.env"), []byte("FOO=bar-longer-value\n"))
	writeTestFile(t, filepath.Join(target, "config", "app.env"), []byte("x\n"))

	if err := CopyProjectFiles(source, target, []string{"config/*.env"}); err != nil {
		t.Fatalf("CopyProjectFiles: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(target, "config", "app.env"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, []byte("FOO=bar-longer-value\n")) {
		t.Errorf("destination was not overwritten, got: %q", content)
	}
}

func TestCopyProjectFiles_EmptyGlobSpecIsNoop(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()
	writeTestFile(t, filepath.Join(source, "config", "app.env"), []byte("FOO=bar\n"))

	if err := CopyProjectFiles(source, target, nil); err != nil {
		t.Fatalf("CopyProjectFiles: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "config")); !os.IsNotExist(err) {
		t.Error("expected nothing copied for an empty glob spec")
	}
}
