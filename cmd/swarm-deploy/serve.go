package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"swarm-deploy/internal/config"
	"swarm-deploy/internal/handler"
	"swarm-deploy/internal/router"
	"swarm-deploy/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the deployment HTTP API",
		Long: `serve exposes deployments over HTTP. Requests carry their own credentials;
nothing is prompted for. Deployments run in the background and their log can
be followed over a websocket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a)
		},
	}
	fs := cmd.Flags()
	fs.String(config.KeyAddr, "127.0.0.1:8080", "Listen address")
	fs.StringSlice(config.KeyAllowOrigins, []string{"http://localhost:3000"}, "Allowed CORS and websocket origins")
	fs.Duration(config.KeyConnectTimeout, 30*time.Second, "SSH connection timeout")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	resolver := service.NewResolver(a.fs, nil)
	deployService := service.NewDeployService(a.sessions, a.fs, a.log, a.cfg.SSH.ConnectTimeout)
	taskService := service.NewTaskService(deployService, resolver, a.log)
	sshService := service.NewSSHService(a.sessions, resolver, a.log, a.cfg.SSH.ConnectTimeout)

	origins := a.cfg.Server.AllowOrigins
	r := router.NewEngine(origins, a.log)
	router.RegisterRoutes(r,
		handler.NewSSHHandler(sshService),
		handler.NewDeployHandler(taskService, origins, a.log),
	)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
