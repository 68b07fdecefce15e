package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andywolf/agentium-supervisor/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the configured repos and executor profiles",
	Long: `status reads the supervisor's configuration and prints what it would
manage: the known repos and the registered executor profiles. It does not
talk to a running supervisor process (the supervisor holds no state
outside the process it runs in).`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Repos) == 0 {
		fmt.Println("No repos configured.")
	} else {
		fmt.Printf("%-20s %-30s %s\n", "ID", "NAME", "PATH")
		for _, r := range cfg.Repos {
			fmt.Printf("%-20s %-30s %s\n", r.ID, r.Name, r.Path)
		}
	}

	if len(cfg.Executors) == 0 {
		fmt.Println("No executor profiles configured.")
		return nil
	}
	fmt.Printf("\n%-20s %s\n", "PROFILE", "ADAPTER")
	for name, e := range cfg.Executors {
		fmt.Printf("%-20s %s\n", name, e.Adapter)
	}
	return nil
}
