// Package cli implements the supervisord command tree: serve, status,
// init, and version.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// Blank-imported so each adapter's init() runs and registers itself
	// with internal/agent's factory map before any command resolves an
	// executor profile's adapter by name.
	_ "github.com/andywolf/agentium-supervisor/internal/agent/claudecode"
	_ "github.com/andywolf/agentium-supervisor/internal/agent/codex"
	_ "github.com/andywolf/agentium-supervisor/internal/agent/droid"
	_ "github.com/andywolf/agentium-supervisor/internal/agent/opencode"
	"github.com/andywolf/agentium-supervisor/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "supervisord",
	Short: "Agentium Supervisor - local coding-agent process supervisor",
	Long: `supervisord runs coding-agent processes (Claude Code, Codex, Droid,
Opencode) as local child processes, normalizes their output into a
canonical conversation timeline, and manages the git worktrees they work
in.

Example:
  supervisord serve --config supervisor.yaml`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .agentium-supervisor.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".agentium-supervisor")
	}

	viper.SetEnvPrefix("AGENTIUM_SUPERVISOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
