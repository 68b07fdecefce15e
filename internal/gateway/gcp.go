package gateway

import (
	"context"

	"github.com/andywolf/agentium-supervisor/internal/cloud/gcp"
)

// CloudShipping wraps a base Gateway and additionally mirrors every
// appended ExecutionProcessLogs line to GCP Cloud Logging, and resolves
// executor credentials through Secret Manager. It is the optional backend
// that exercises the internal/cloud/gcp clients instead of leaving them
// unused.
type CloudShipping struct {
	Gateway
	logger  gcp.LoggerInterface
	secrets gcp.SecretFetcher
}

// NewCloudShipping wraps base with optional Cloud Logging (logger may be
// nil to disable log shipping) and optional Secret Manager-backed
// credential fetch (secrets may be nil to disable).
func NewCloudShipping(base Gateway, logger gcp.LoggerInterface, secrets gcp.SecretFetcher) *CloudShipping {
	return &CloudShipping{Gateway: base, logger: logger, secrets: secrets}
}

// AppendExecutionLog mirrors the line into the base gateway and, if a
// Cloud Logging client is configured, ships it as a structured INFO entry
// tagged with the execution process id.
func (c *CloudShipping) AppendExecutionLog(ctx context.Context, executionProcessID string, line []byte) error {
	if err := c.Gateway.AppendExecutionLog(ctx, executionProcessID, line); err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Log(gcp.SeverityInfo, string(line), map[string]interface{}{
			"execution_process_id": executionProcessID,
		})
	}
	return nil
}

// FetchExecutorCredential resolves a vendor credential (e.g. an API key or
// OAuth token blob) from Secret Manager for injection into an executor's
// environment. Returns an error if no secret fetcher is configured.
func (c *CloudShipping) FetchExecutorCredential(ctx context.Context, secretPath string) (string, error) {
	if c.secrets == nil {
		return "", errSecretsNotConfigured
	}
	return c.secrets.FetchSecret(ctx, secretPath)
}

var errSecretsNotConfigured = &ErrNotFound{Kind: "secret fetcher", ID: "unconfigured"}
