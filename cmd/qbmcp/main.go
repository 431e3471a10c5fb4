package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/qbmcp/internal/config"
	"github.com/yourorg/qbmcp/internal/dispatch"
	"github.com/yourorg/qbmcp/internal/entity"
	"github.com/yourorg/qbmcp/internal/mcpserver"
	"github.com/yourorg/qbmcp/internal/server"
	"github.com/yourorg/qbmcp/internal/store"
	"github.com/yourorg/qbmcp/internal/tools"
)

var version = "dev"

const defaultConfigContent = `quickbooks:
  env: "sandbox"
  company_id: ""
  client_id: ""
  client_secret: ""
  refresh_token: ""
  minor_version: "75"

schema:
  openapi_path: ""
  entities_path: ""
  tools_path: ""

store:
  path: "~/.qbmcp/qbmcp.db"

sanitize:
  fields:
    - password
    - secret
    - token
    - access_token
    - refresh_token
    - client_secret
    - TaxIdentifier
    - AcctNum
  replacement: "***REDACTED***"

http:
  timeout: 60s

server:
  host: "127.0.0.1"
  port: 3030
  token: ""

log:
  level: "info"
  format: "text"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	cfgPath string
	debug   bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "qbmcp",
		Short:         "QuickBooks Online tools over MCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&f.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&f.debug, "debug", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newServeCmd(f))
	root.AddCommand(newToolsCmd(f))
	root.AddCommand(newDescribeCmd(f))
	root.AddCommand(newCallsCmd(f))
	root.AddCommand(newAdminCmd(f))

	return root
}

func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.cfgPath)
	if err != nil {
		return nil, err
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// open loads config and builds the app. Logs always go to stderr so stdout
// stays free for the stdio transport.
func (f *rootFlags) open(ctx context.Context, validateServe bool) (*app, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	if validateServe {
		err = cfg.ValidateServe()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, newLogger(os.Stderr, cfg.Log))
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.qbmcp directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := config.Dir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(baseDir, 0o700); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o600); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "qbmcp.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "please set the quickbooks credentials in", cfgFile)
			return nil
		},
	}
}

func newServeCmd(f *rootFlags) *cobra.Command {
	var transport string
	cmd := &cobra.Command{Use: "serve", Short: "Start the MCP server", RunE: func(cmd *cobra.Command, args []string) error {
		if transport != "stdio" && transport != "http" {
			return fmt.Errorf("unknown transport %q: want stdio or http", transport)
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()

		a, err := f.open(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		srv, err := mcpserver.New(mcpserver.Config{Name: "qbmcp", Version: version, Tools: a.tools, Logger: a.logger})
		if err != nil {
			return err
		}
		if transport == "http" {
			return srv.ServeHTTP(ctx, a.cfg.Addr())
		}
		return srv.ServeStdio(ctx)
	}}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio or http")
	return cmd
}

func newToolsCmd(f *rootFlags) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{Use: "tools", Short: "Print or render the tool catalogue", RunE: func(cmd *cobra.Command, args []string) error {
		a, err := f.open(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		catalog, err := a.tools.Catalog()
		if err != nil {
			return err
		}
		switch format {
		case "markdown":
			if out != "" {
				return tools.RenderMarkdown(catalog, out)
			}
			data, err := tools.Markdown(catalog)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		case "json":
			if out != "" {
				return tools.RenderJSON(catalog, out)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"tools": catalog})
		default:
			return fmt.Errorf("unknown format %q: want json or markdown", format)
		}
	}}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or markdown")
	cmd.Flags().StringVar(&out, "out", "", "write tools.json or tools.md into this directory")
	return cmd
}

func newDescribeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [entity]",
		Short: "Print an entity schema, or the available entity names",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			return describeEntity(cmd, a.entities, args)
		},
	}
}

func describeEntity(cmd *cobra.Command, catalog *entity.Catalog, args []string) error {
	w := cmd.OutOrStdout()
	if len(args) == 0 {
		for _, name := range catalog.Names() {
			fmt.Fprintln(w, name)
		}
		return nil
	}
	s, err := catalog.Describe(args[0])
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(s, &pretty); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func newCallsCmd(f *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{Use: "calls", Short: "List journaled QuickBooks calls", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.load()
		if err != nil {
			return err
		}
		if cfg.Store.Path == "" {
			return errors.New("store.path is not configured; the call journal is disabled")
		}
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		calls, err := s.ListCalls(cmd.Context(), limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tOPERATION\tMETHOD\tROUTE\tSTATUS\tATTEMPTS\tLATENCY\tERROR")
		for _, c := range calls {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%dms\t%s\n",
				c.CreatedAt.Format("2006-01-02 15:04:05"), c.Operation, c.Method, c.Route, c.StatusCode, c.Attempts, c.LatencyMs, dispatch.Truncate(c.Error, 60))
		}
		return tw.Flush()
	}}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of calls, newest first (0 for all)")
	return cmd
}

func newAdminCmd(f *rootFlags) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{Use: "admin", Short: "Start the admin HTTP API", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		a, err := f.open(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("host") {
			a.cfg.Server.Host = host
		}
		if cmd.Flags().Changed("port") {
			a.cfg.Server.Port = port
		}
		var st store.Store
		if a.store != nil {
			st = a.store
		}
		srv, err := server.New(a.tools, st, a.session, a.logger)
		if err != nil {
			return err
		}
		srv.Token = a.cfg.Server.Token
		if srv.Token == "" {
			a.logger.Warn("admin API tool calls are unauthenticated; set QBMCP_SERVER_TOKEN")
		}
		a.logger.Info("admin API listening", "addr", a.cfg.Addr())
		return srv.ListenAndServe(ctx, a.cfg.Addr())
	}}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3030, "server port")
	return cmd
}
