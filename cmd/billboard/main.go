// Command billboard runs the display orchestration service.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/escape-llc/eink-billboard/internal/app"
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/config/file"
	"github.com/escape-llc/eink-billboard/internal/datasource"
	"github.com/escape-llc/eink-billboard/internal/datasource/banner"
	"github.com/escape-llc/eink-billboard/internal/datasource/folder"
	"github.com/escape-llc/eink-billboard/internal/home"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/plugin"
	"github.com/escape-llc/eink-billboard/internal/plugin/debug"
	"github.com/escape-llc/eink-billboard/internal/plugin/slideshow"
	"github.com/escape-llc/eink-billboard/internal/server"
)

var version = "dev"

func main() {
	levelFlag := "info"

	// Base handler allows all levels; the ComponentFilterHandler applies
	// the effective level so it can be tuned per component at runtime.
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "billboard",
		Short: "Display orchestration service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(levelFlag)
			if err != nil {
				return err
			}
			filterHandler.SetDefaultLevel(level)

			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					logger.Info("pprof server listening", "addr", pprofAddr)
					if err := http.ListenAndServe(pprofAddr, nil); err != nil {
						logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "info", "log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().String("base", "", "base directory (default: platform config dir)")
	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060). WARNING: exposes CPU/memory profiles and goroutine dumps - bind to loopback only, never expose publicly")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the billboard service",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := startOptions(cmd)
			if err != nil {
				return err
			}
			opts.Telemetry, _ = cmd.Flags().GetBool("telemetry")
			opts.Watcher, _ = cmd.Flags().GetBool("watch")
			opts.Scale, _ = cmd.Flags().GetFloat64("scale")
			addr, _ := cmd.Flags().GetString("addr")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return serve(ctx, logger, opts, addr)
		},
	}
	serveCmd.Flags().String("storage", "", "document tree location (default: <base>/storage)")
	serveCmd.Flags().String("template", "", "template directory applied by --hard-reset (default: built-in)")
	serveCmd.Flags().Bool("hard-reset", false, "wipe and re-materialize the document tree before starting")
	serveCmd.Flags().Bool("telemetry", true, "export layer telemetry on /metrics")
	serveCmd.Flags().Bool("watch", true, "evict cached documents on external edits")
	serveCmd.Flags().Float64("scale", 0, "compress logical time by this factor (testing)")
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address (host:port), empty disables the API")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe and re-materialize the document tree, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := startOptions(cmd)
			if err != nil {
				return err
			}
			return reset(logger, opts)
		},
	}
	resetCmd.Flags().String("storage", "", "document tree location (default: <base>/storage)")
	resetCmd.Flags().String("template", "", "template directory (default: built-in)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, resetCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// startOptions resolves the shared path flags into StartOptions.
func startOptions(cmd *cobra.Command) (app.StartOptions, error) {
	base, _ := cmd.Flags().GetString("base")
	if base == "" {
		hd, err := home.Default()
		if err != nil {
			return app.StartOptions{}, fmt.Errorf("resolve base directory: %w", err)
		}
		base = hd.Root()
	}
	storage, _ := cmd.Flags().GetString("storage")
	template, _ := cmd.Flags().GetString("template")
	hardReset, _ := cmd.Flags().GetBool("hard-reset")
	return app.StartOptions{
		BasePath:     base,
		StoragePath:  storage,
		TemplatePath: template,
		HardReset:    hardReset,
	}, nil
}

// builtins registers the compiled-in plugins and data sources.
func builtins() (*plugin.Registry, *datasource.Registry, error) {
	plugins := plugin.NewRegistry()
	if err := plugins.Register(debug.New); err != nil {
		return nil, nil, err
	}
	if err := plugins.Register(slideshow.New); err != nil {
		return nil, nil, err
	}

	sources := datasource.NewRegistry()
	if err := sources.Register(folder.Describe(), folder.New); err != nil {
		return nil, nil, err
	}
	if err := sources.Register(banner.Describe(), banner.New); err != nil {
		return nil, nil, err
	}
	return plugins, sources, nil
}

func serve(ctx context.Context, logger *slog.Logger, opts app.StartOptions, addr string) error {
	plugins, sources, err := builtins()
	if err != nil {
		return err
	}

	a, err := app.New(app.Config{
		Options: opts,
		Plugins: plugins,
		Sources: sources,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	logger.Info("starting", "version", version, "base", opts.BasePath)
	if err := a.Run(ctx); err != nil {
		a.Shutdown()
		return err
	}
	defer a.Shutdown()

	var ready atomic.Bool
	ready.Store(true)

	serverErr := make(chan error, 1)
	var srv *server.Server
	if addr != "" {
		srv = server.New(server.Config{
			Manager: a.ConfigManager(),
			Plugins: a.Plugins(),
			Sources: a.Sources(),
			Ready:   ready.Load,
			Logger:  logger,
		})
		go func() {
			serverErr <- srv.ListenAndServe(addr)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}
	ready.Store(false)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
	}
	return nil
}

// reset re-materializes the document tree without starting the mesh.
func reset(logger *slog.Logger, opts app.StartOptions) error {
	plugins, sources, err := builtins()
	if err != nil {
		return err
	}

	hd := home.New(opts.BasePath)
	if err := hd.EnsureExists(); err != nil {
		return err
	}
	storageRoot := opts.StoragePath
	if storageRoot == "" {
		storageRoot = hd.StorageDir()
	}
	store, err := file.NewStore(storageRoot)
	if err != nil {
		return err
	}
	cm, err := config.NewManager(config.ManagerConfig{
		Storage:  store,
		FontsDir: hd.FontsDir(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var template config.TemplateSource
	if opts.TemplatePath != "" {
		template = file.NewTemplate(opts.TemplatePath)
	} else {
		template = app.DefaultTemplate()
	}
	var provisions []config.Provision
	for _, d := range plugins.Descriptors() {
		provisions = append(provisions, config.Provision{
			Moniker: "plugins/" + d.ID + "/settings",
			Content: d.Defaults,
		})
	}
	for _, d := range sources.Descriptors() {
		provisions = append(provisions, config.Provision{
			Moniker: "datasources/" + d.ID + "/settings",
			Content: d.Defaults,
		})
	}
	if err := cm.HardReset(template, provisions); err != nil {
		return err
	}
	logger.Info("document tree reset", "storage", storageRoot)
	return nil
}
