package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// copyFilesTimeout bounds CopyProjectFiles so a misconfigured glob spec
// walking a huge tree cannot hang an execution's setup step indefinitely.
const copyFilesTimeout = 30 * time.Second

// CopyProjectFiles copies files under source into target according to
// globSpec, a multi-pattern gitignore-style DSL: one pattern per line,
// matched the same way a .gitignore entry is. A file already present at
// the destination is left alone when it is the same size as the source;
// otherwise it is overwritten.
func CopyProjectFiles(source, target string, globSpec []string) error {
	if len(globSpec) == 0 {
		return nil
	}

	matcher, err := ignore.CompileIgnoreLines(globSpec...)
	if err != nil {
		return fmt.Errorf("workspace: compile copy_files glob spec: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), copyFilesTimeout)
	defer cancel()

	return filepath.Walk(source, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("workspace: copy_files timed out after %s", copyFilesTimeout)
		default:
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if !matcher.MatchesPath(rel) {
			return nil
		}

		return copyOneFile(path, filepath.Join(target, rel), info)
	})
}

func copyOneFile(src, dst string, info os.FileInfo) error {
	if existing, err := os.Stat(dst); err == nil && existing.Size() == info.Size() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("workspace: create dest dir for %s: %w", dst, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("workspace: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("workspace: create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("workspace: copy %s to %s: %w", src, dst, err)
	}
	return nil
}
