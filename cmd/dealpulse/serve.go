package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/marcosevegrand/dealpulse/internal/refresh"
	"github.com/marcosevegrand/dealpulse/internal/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run refresh and alert batches on a schedule and expose HTTP triggers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address, overrides config"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if v := c.String("addr"); v != "" {
				cfg.Server.Addr = v
			}

			ctx, stop := signalContext(c.Context)
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			reader, ok := rt.store.(server.ProductReader)
			if !ok {
				return fmt.Errorf("storage driver %s does not support product views", cfg.Storage.Driver)
			}
			srv := server.New(rt.scheduler, reader, rt.logger.With().Str("component", "server").Logger())

			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				srv.Every(ctx, refresh.KindRefresh, cfg.Server.RefreshInterval())
			}()
			go func() {
				defer wg.Done()
				srv.Every(ctx, refresh.KindAlerts, cfg.Server.AlertInterval())
			}()

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info().Str("addr", cfg.Server.Addr).Msg("🚀 dealpulse server listening")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				stop()
				wg.Wait()
				return err
			case <-ctx.Done():
			}

			rt.logger.Info().Msg("📴 shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err = httpServer.Shutdown(shutdownCtx)
			wg.Wait()
			return err
		},
	}
}
