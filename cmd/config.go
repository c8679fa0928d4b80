package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"matrixmcp/internal/config"
	"matrixmcp/pkg/logging"
)

// newConfigCmd groups the configuration inspection commands.
func newConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory containing config.yaml (default ~/.config/matrix-mcp)")

	var output string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults, config.yaml and environment are applied",
		Long: `Prints the effective configuration. Secrets are always redacted.

Output formats:
  table  key/value table (default)
  yaml   config.yaml compatible document`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigForCLI(cmd, configPath)
			if err != nil {
				return err
			}
			switch output {
			case "table":
				renderConfigTable(cmd.OutOrStdout(), cfg)
				return nil
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("failed to encode configuration: %w", err)
				}
				return enc.Close()
			default:
				return fmt.Errorf("unsupported output format %q (use table or yaml)", output)
			}
		},
	}
	show.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or yaml")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit non-zero when it is invalid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfigForCLI(cmd, configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s configuration is valid\n", text.FgGreen.Sprint("✓"))
			return nil
		},
	}

	cmd.AddCommand(show, validate)
	return cmd
}

func loadConfigForCLI(cmd *cobra.Command, configPath string) (config.Config, error) {
	logging.InitForCLI(logging.LevelWarn, cmd.ErrOrStderr())

	if configPath == "" {
		path, err := config.GetDefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
		configPath = path
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		var validationErrs config.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, ve := range validationErrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", text.FgRed.Sprint("✗"), ve.Error())
			}
		}
		return config.Config{}, err
	}
	return cfg, nil
}

func renderConfigTable(w io.Writer, cfg config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"KEY", "VALUE"})

	section := func(rows ...table.Row) {
		t.AppendRows(rows)
		t.AppendSeparator()
	}

	section(
		table.Row{"server.host", cfg.Server.Host},
		table.Row{"server.port", cfg.Server.Port},
		table.Row{"server.enableHttps", cfg.Server.EnableHTTPS},
		table.Row{"server.sslCertPath", orNotSet(cfg.Server.SSLCertPath)},
		table.Row{"server.sslKeyPath", orNotSet(cfg.Server.SSLKeyPath)},
		table.Row{"server.corsAllowedOrigins", joinOr(cfg.Server.CORSAllowedOrigins, "*")},
		table.Row{"server.resourceUrl", cfg.ResourceURL()},
	)
	section(
		table.Row{"matrix.homeserverUrl", cfg.Matrix.HomeserverURL},
		table.Row{"matrix.clientId", orNotSet(cfg.Matrix.ClientID)},
		table.Row{"matrix.clientSecret", cfg.Matrix.ClientSecret.Display()},
		table.Row{"matrix.audience", orNotSet(cfg.Matrix.EffectiveAudience())},
		table.Row{"matrix.syncTimeout", cfg.Matrix.SyncTimeout},
		table.Row{"matrix.httpTimeout", cfg.Matrix.HTTPTimeout},
	)
	section(
		table.Row{"oauth.enabled", cfg.OAuth.Enabled},
		table.Row{"oauth.tokenExchange", cfg.OAuth.TokenExchange},
		table.Row{"oauth.issuerUrl", orNotSet(cfg.OAuth.IssuerURL)},
		table.Row{"oauth.discovery", cfg.OAuth.Discovery},
		table.Row{"oauth.jwksUrl", orNotSet(cfg.OAuth.JWKSURL)},
		table.Row{"oauth.userinfoUrl", orNotSet(cfg.OAuth.UserinfoURL)},
		table.Row{"oauth.tokenUrl", orNotSet(cfg.OAuth.TokenURL)},
		table.Row{"oauth.caFile", orNotSet(cfg.OAuth.CAFile)},
		table.Row{"oauth.scopesSupported", joinOr(cfg.OAuth.ScopesSupported, "(not set)")},
	)
	t.AppendRows([]table.Row{
		{"session.ttl", cfg.Session.TTL},
		{"session.sweepInterval", cfg.Session.SweepInterval},
		{"logging.level", cfg.Logging.Level},
		{"logging.format", cfg.Logging.Format},
	})

	t.Render()
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func joinOr(values []string, empty string) string {
	if len(values) == 0 {
		return empty
	}
	return strings.Join(values, ", ")
}
