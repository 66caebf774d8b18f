// Command glyph-dap runs the Debug Adapter Protocol server standalone: a
// reference host embedding an empty vmscript.VM, for exercising the wire
// protocol and the project-directory workflow without a real game engine
// attached. Grounded on cmd/glyph's cobra command tree, flag-per-subcommand
// binding, and waitForShutdown signal handling.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/glyphlang/glyph-dap/internal/config"
	"github.com/glyphlang/glyph-dap/internal/dapserver"
	"github.com/glyphlang/glyph-dap/internal/events"
	"github.com/glyphlang/glyph-dap/internal/logging"
	"github.com/glyphlang/glyph-dap/internal/metrics"
	"github.com/glyphlang/glyph-dap/internal/scriptref"
	"github.com/glyphlang/glyph-dap/internal/store"
	"github.com/glyphlang/glyph-dap/internal/tracing"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

var version = "0.1.0"

var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func printInfo(msg string)    { infoColor.Printf("[INFO] %s\n", msg) }
func printSuccess(msg string) { successColor.Printf("[SUCCESS] %s\n", msg) }
func printWarning(msg string) { warningColor.Printf("[WARNING] %s\n", msg) }
func printError(err error)    { errorColor.Printf("[ERROR] %s\n", err.Error()) }

func main() {
	rootCmd := &cobra.Command{
		Use:     "glyph-dap",
		Short:   "Debug Adapter Protocol server for a register-based scripting VM",
		Version: version,
	}

	var serveCfgPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept one DAP client at a time and serve it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, serveCfgPath)
		},
	}
	serveCmd.Flags().Int("port", 0, fmt.Sprintf("TCP port to listen on (default %d)", config.DefaultPort))
	serveCmd.Flags().Int("ws-port", 0, "WebSocket port to listen on (0 disables the transport)")
	serveCmd.Flags().StringVar(&serveCfgPath, "config", "", "path to a glyph-dap.yaml config file")
	serveCmd.Flags().String("project-path", "", "directory of scripts served as one archive")
	serveCmd.Flags().String("project-archive", "", "archive name scripts under project-path are qualified with")
	serveCmd.Flags().String("sqlite-path", "", "path to a SQLite database for breakpoint persistence")
	serveCmd.Flags().String("redis-addr", "", "Redis address to mirror DAP events to")
	serveCmd.Flags().String("log-level", "", "debug, info, warn, error, or fatal")
	serveCmd.Flags().String("log-format", "", "text or json")
	serveCmd.Flags().Bool("enable-tracing", false, "emit OpenTelemetry spans to stdout")
	serveCmd.Flags().Int("metrics-port", 0, "HTTP port to serve Prometheus metrics on (0 disables)")

	decompileCmd := &cobra.Command{
		Use:   "decompile <file>",
		Short: "Print the raw bytes the `source` DAP request would serve for file",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecompile,
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(decompileCmd)

	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	cfg = config.ApplyFlags(cfg, cmd)
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = config.DefaultPort
	}

	log := logging.New(cfg.LoggingConfig())
	defer log.Close()

	enableTracing, _ := cmd.Flags().GetBool("enable-tracing")
	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = enableTracing
	provider, err := tracing.Init(tracingCfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	metricsHandler := metrics.New()
	if metricsPort, _ := cmd.Flags().GetInt("metrics-port"); metricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler.Handler())
		metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", metricsPort), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				printWarning(fmt.Sprintf("metrics server: %v", err))
			}
		}()
		defer metricsSrv.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	persistStore, err := store.Open(ctx, cfg.Persistence.SQLitePath)
	if err != nil {
		return fmt.Errorf("open breakpoint store: %w", err)
	}

	mirror, err := events.Open(ctx, events.Config{Addr: cfg.Events.RedisAddr}, log)
	if err != nil {
		return fmt.Errorf("open event mirror: %w", err)
	}

	// The real VM is an external collaborator (SPEC_FULL.md §2 "VM Interface
	// ... abstract operations"); a game engine embedding this package supplies
	// its own implementation through dapserver.Deps.VM. Standalone, an empty
	// reference VM exercises the wire protocol and project-directory workflow;
	// it has no scripts loaded, and `launch`/`attach` projectSources only
	// index source descriptors without loading anything into it.
	vm := vmscript.NewRefVM()

	srv, err := dapserver.NewServer(dapserver.Config{
		Port:           cfg.Listen.Port,
		WebsocketPort:  cfg.Listen.WebsocketPort,
		ProjectPath:    cfg.Project.Path,
		ProjectArchive: cfg.Project.Archive,
	}, dapserver.Deps{
		VM:      vm,
		Log:     log,
		Metrics: metricsHandler,
		Mirror:  mirror,
		Store:   persistStore,
	})
	if err != nil {
		return fmt.Errorf("start dap server: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	printInfo(fmt.Sprintf("glyph-dap listening on :%d", cfg.Listen.Port))
	if cfg.Listen.WebsocketPort != 0 {
		printInfo(fmt.Sprintf("websocket transport on :%d", cfg.Listen.WebsocketPort))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		printWarning(fmt.Sprintf("received %s, shutting down", sig))
	case err := <-serveErr:
		if err != nil {
			printError(err)
		}
	}

	if err := srv.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	printSuccess("glyph-dap stopped gracefully")
	return nil
}

func runDecompile(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !scriptref.IsScriptPath(path) {
		printWarning(fmt.Sprintf("%s does not have a recognized script extension", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	printInfo(fmt.Sprintf("%s (%d bytes)", path, len(data)))
	fmt.Println(string(data))
	return nil
}
