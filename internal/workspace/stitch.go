package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// stitchConfigFiles creates workspaceDir/<filename> containing one
// "@<repo.Name>/<filename>" import line per repo that ships filename,
// when at least one repo does. It never overwrites an existing file.
func stitchConfigFiles(workspaceDir string, repos []RepoTarget, filename string) error {
	dest := filepath.Join(workspaceDir, filename)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	var imports []string
	for _, repo := range repos {
		repoFile := filepath.Join(workspaceDir, repo.Name, filename)
		if _, err := os.Stat(repoFile); err == nil {
			imports = append(imports, fmt.Sprintf("@%s/%s", repo.Name, filename))
		}
	}

	if len(imports) == 0 {
		return nil
	}

	var content string
	for _, line := range imports {
		content += line + "\n"
	}

	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return fmt.Errorf("workspace: stitch %s: %w", filename, err)
	}
	return nil
}
