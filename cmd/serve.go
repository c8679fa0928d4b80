package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"matrixmcp/internal/app"
)

// newServeCmd creates the command that runs the MCP server.
func newServeCmd() *cobra.Command {
	var (
		debug      bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Starts the streamable HTTP MCP server and blocks until interrupted.

Configuration:
  Settings are read from config.yaml in the configuration directory
  (default ~/.config/matrix-mcp) and overridden by environment variables
  such as PORT, ENABLE_OAUTH, IDP_ISSUER_URL and MATRIX_HOMESERVER_URL.
  Run 'matrix-mcp config show' to print the effective configuration.

Endpoints:
  /mcp                                       MCP endpoint
  /health                                    liveness probe
  /.well-known/oauth-protected-resource      when OAuth is enabled
  /.well-known/oauth-authorization-server    when OAuth is enabled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(app.NewConfig(debug, configPath, GetVersion()))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return application.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging regardless of LOG_LEVEL")
	cmd.Flags().StringVar(&configPath, "config-path", "", "Configuration directory containing config.yaml (default ~/.config/matrix-mcp)")
	return cmd
}
