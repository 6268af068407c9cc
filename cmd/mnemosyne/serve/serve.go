// Package servecmder provides the serve command, which runs the memory HTTP
// API with the MCP server and Prometheus metrics mounted on it.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/mnemosyne/api"
	"github.com/papercomputeco/mnemosyne/api/mcp"
	commoncmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne/common"
	"github.com/papercomputeco/mnemosyne/pkg/cliui"
	"github.com/papercomputeco/mnemosyne/pkg/config"
	"github.com/papercomputeco/mnemosyne/pkg/dotdir"
	"github.com/papercomputeco/mnemosyne/pkg/logger"
)

type serveCommander struct {
	listen     string
	noMCP      bool
	noMetrics  bool
	noLogFile  bool
	cfg        *config.Config
	logger     *slog.Logger
	logCleanup func() error
}

const serveLongDesc string = `Run the mnemosyne API server.

Serves the memory administration API under /v1, the MCP server at /mcp
(streamable HTTP) and Prometheus metrics at /metrics. Logs go to stderr and,
as JSON, to <dotdir>/logs/mnemosyne.log; follow them with "mnemosyne logs -f".

Examples:
  mnemosyne serve
  mnemosyne serve --listen :9000 --vector-store-provider qdrant --vector-store-target localhost:6334`

const serveShortDesc string = "Run the mnemosyne API server"

var serveFlagKeys = append([]string{config.FlagAPIListen}, commoncmder.StackFlagKeys...)

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = commoncmder.LoadConfig(cmd, serveFlagKeys)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmder.setupLogger(cmd); err != nil {
				return err
			}
			defer cmder.logCleanup()
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP server at /mcp")
	cmd.Flags().BoolVar(&cmder.noMetrics, "no-metrics", false, "Do not serve Prometheus metrics at /metrics")
	cmd.Flags().BoolVar(&cmder.noLogFile, "no-log-file", false, "Log to stderr only")
	commoncmder.AddStackFlags(cmd)

	return cmd
}

// setupLogger fans records out to stderr and the JSON log file.
func (c *serveCommander) setupLogger(cmd *cobra.Command) error {
	stderr := commoncmder.NewLogger(cmd)
	c.logCleanup = func() error { return nil }

	if c.noLogFile {
		c.logger = stderr
		return nil
	}

	path, err := dotdir.NewManager().LogPath(commoncmder.ConfigDir(cmd))
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	debug, _ := cmd.Flags().GetBool(commoncmder.FlagDebug)
	c.logger = logger.Multi(stderr, logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	))
	c.logCleanup = f.Close
	return nil
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := commoncmder.OpenStack(ctx, cmd, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Service: st.Service,
		Budget:  st.Budget,
		Noop:    c.noMCP,
		Logger:  c.logger.With("component", "mcp"),
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiConfig := api.Config{
		ListenAddr:     c.cfg.API.Listen,
		Budget:         st.Budget,
		Tracker:        st.Tracker,
		DisableMetrics: c.noMetrics,
	}
	if !c.noMCP {
		apiConfig.MCPHandler = mcpServer.Handler()
	}
	server := api.NewServer(apiConfig, st.Service, c.logger.With("component", "api"))

	c.logger.Info("serving memory",
		"listen", apiConfig.ListenAddr,
		"collection", st.Service.Collection(),
		"vector_store", c.cfg.VectorStore.Provider,
		"embedding_model", c.cfg.Embedding.Model,
		"mcp", !c.noMCP,
	)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n  %s Listening on %s\n\n",
		cliui.SuccessMark, cliui.KeyStyle.Render(apiConfig.ListenAddr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")
		return server.Shutdown()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
