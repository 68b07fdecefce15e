package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andywolf/agentium-supervisor/internal/approval"
	"github.com/andywolf/agentium-supervisor/internal/cloud/gcp"
	"github.com/andywolf/agentium-supervisor/internal/config"
	"github.com/andywolf/agentium-supervisor/internal/gateway"
	"github.com/andywolf/agentium-supervisor/internal/github"
	"github.com/andywolf/agentium-supervisor/internal/supervisor"
	"github.com/andywolf/agentium-supervisor/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the supervisor until interrupted",
	Long: `serve loads the configured repos and executor profiles, reconciles
any ExecutionProcess rows left Running by a crash, and then blocks,
supervising spawned coding-agent processes until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := buildGateway(ctx, cfg)

	var tokens supervisor.GitHubTokenSource
	if cfg.GitHubConfigured() {
		privateKey, err := fetchGitHubPrivateKey(ctx, gw, cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning: github token minting disabled:", err)
		} else if tm, err := github.NewTokenManager(fmt.Sprint(cfg.GitHub.AppID), cfg.GitHub.InstallationID, privateKey); err != nil {
			fmt.Fprintln(os.Stderr, "warning: github token minting disabled:", err)
		} else {
			tokens = tm
		}
	}

	// serve has no interactive UI or automation policy to call
	// approval.Broker.Resolve, so a real Broker would only ever time out;
	// NoopBroker fails open instead.
	s := supervisor.New(gw, approval.NoopBroker{}, supervisor.NoopNotifier{}, cfg.Server.LogDir)
	s.GitHubTokens = tokens

	fmt.Printf("supervisor starting: %d repo(s) configured, log dir %s\n", len(cfg.Repos), cfg.Server.LogDir)

	if err := s.ReconcileOrphans(ctx, newGatewayResolver(gw, cfg)); err != nil {
		fmt.Fprintln(os.Stderr, "warning: orphan reconciliation failed:", err)
	}

	sweeper := workspace.NewSweeper(cfg.Workspace.BaseDir, registryAdapter{gw}, 0)
	sweeper.Start()
	defer sweeper.Stop()

	<-ctx.Done()
	fmt.Println("shutting down, stopping live executions...")
	s.Shutdown(context.Background())
	return nil
}

func buildGateway(ctx context.Context, cfg *config.Config) gateway.Gateway {
	base := gateway.NewInMemory()
	if !cfg.GCP.Enabled {
		return base
	}

	logger := gcp.NewCloudLogger(cfg.GCP.LogName)

	var secrets gcp.SecretFetcher
	if sm, err := gcp.NewSecretManagerClient(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning: secret manager client unavailable:", err)
	} else {
		secrets = sm
	}

	return gateway.NewCloudShipping(base, logger, secrets)
}

// fetchGitHubPrivateKey resolves the GitHub App private key named by
// cfg.GitHub.PrivateKeySecret through whatever secret-fetching capability
// the configured gateway offers.
func fetchGitHubPrivateKey(ctx context.Context, gw gateway.Gateway, cfg *config.Config) ([]byte, error) {
	shipping, ok := gw.(*gateway.CloudShipping)
	if !ok {
		return nil, fmt.Errorf("github app private key requires gcp.enabled for secret manager access")
	}
	secret, err := shipping.FetchExecutorCredential(ctx, cfg.GitHub.PrivateKeySecret)
	if err != nil {
		return nil, err
	}
	return []byte(secret), nil
}
