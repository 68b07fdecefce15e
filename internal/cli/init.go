package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/agentium-supervisor/internal/cli/wizard"
	"github.com/andywolf/agentium-supervisor/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a starter .agentium-supervisor.yaml",
	Long: `init scans the given directories for git repositories, lets the
operator confirm which ones the supervisor should manage through an
interactive wizard, and writes the resulting config file.

Example:
  supervisord init ./service-a ./service-b
  supervisord init --non-interactive ./service-a`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("non-interactive", false, "skip the wizard and include every discovered repo")
	initCmd.Flags().String("out", ".agentium-supervisor.yaml", "path to write the generated config")
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	force, _ := cmd.Flags().GetBool("force")
	nonInteractive, _ := cmd.Flags().GetBool("non-interactive")

	if _, err := os.Stat(out); err == nil && !force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", out)
	}

	if len(args) == 0 {
		args = []string{"."}
	}

	candidates, err := discoverRepos(args)
	if err != nil {
		return fmt.Errorf("discover repos: %w", err)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no git repositories found under %v", args)
	}

	selected := candidates
	if !nonInteractive {
		selected, err = wizard.Run(candidates)
		if err != nil {
			return fmt.Errorf("wizard: %w", err)
		}
	}

	cfg := config.Config{Repos: selected}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("wrote %s with %d repo(s)\n", out, len(selected))
	return nil
}

// discoverRepos walks each root looking for a .git directory one level in,
// treating its parent as a candidate repo.
func discoverRepos(roots []string) ([]config.RepoConfig, error) {
	var repos []config.RepoConfig
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		if isGitRepo(root) {
			repos = append(repos, repoConfigFor(root))
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			candidate := filepath.Join(root, e.Name())
			if isGitRepo(candidate) {
				repos = append(repos, repoConfigFor(candidate))
			}
		}
	}
	return repos, nil
}

func isGitRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}

func repoConfigFor(dir string) config.RepoConfig {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return config.RepoConfig{
		ID:   filepath.Base(abs),
		Name: filepath.Base(abs),
		Path: abs,
	}
}
