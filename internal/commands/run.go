package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"evalgo.org/mgapphost/internal/api"
	"evalgo.org/mgapphost/internal/health"
	"evalgo.org/mgapphost/internal/orchestration"
	"evalgo.org/mgapphost/pkg/appmodel"
	"evalgo.org/mgapphost/pkg/memgraph"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run Memgraph (and Lab) on the local Docker daemon",
	Long: `Build the application model from configuration, start its containers,
wait until Memgraph accepts bolt connections and serve the status API until
interrupted. All containers are removed again on exit.`,
	RunE: runApp,
}

func runApp(cmd *cobra.Command, args []string) (runErr error) {
	app, db, err := buildModel(cfg, logger)
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, cfg.Startup.Timeout)
	defer cancel()

	cli, err := orchestration.NewDockerClient(startCtx, cfg.Docker.Host)
	if err != nil {
		return err
	}
	defer cli.Close()

	orch := orchestration.New(cli, nil, logger, orchestration.Options{
		ContainerHost: cfg.Docker.ContainerHost,
		NetworkName:   cfg.Docker.Network,
		PullImages:    cfg.Docker.PullImages,
		RemoveVolumes: cfg.Docker.RemoveVolumes,
		StopTimeout:   cfg.Docker.StopTimeout,
	})

	if err := orch.Run(startCtx, app); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Docker.StopTimeout+30*time.Second)
		defer cancel()
		if err := orch.Stop(stopCtx); err != nil {
			logger.Errorw("Failed to stop application", "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}()

	cs, err := db.Resource().GetConnectionString(startCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve connection string: %w", err)
	}
	logger.Infow("Memgraph started", "resource", db.Resource().Name(), "connection_string", cs)

	for _, lab := range appmodel.ResourcesOf[*memgraph.LabResource](app) {
		logger.Infow("Memgraph Lab started", "resource", lab.Name(), "url", lab.PrimaryEndpoint().URL())
	}

	if cfg.Startup.WaitReady {
		if err := health.WaitReady(startCtx, health.NewBoltProbe(cs), cfg.Startup.PollInterval, logger); err != nil {
			return fmt.Errorf("memgraph did not become ready: %w", err)
		}
	}

	var server *api.Server
	errChan := make(chan error, 1)
	if cfg.Server.Enabled {
		server = api.New(cfg.Server, app, orch, logger)
		go func() {
			if err := server.Start(); err != nil {
				errChan <- err
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Infow("Shutdown signal received")
	case err := <-errChan:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	return runErr
}
