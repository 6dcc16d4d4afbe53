package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketlake/lake/httpapi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST adapter over the lake",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			e.cfg.Addr = addr
		}

		e.log.Info().Str("env", e.cfg.Env).Msg("market lake starting")

		router := httpapi.NewRouter(&httpapi.Deps{
			Config:     e.cfg,
			Log:        e.log,
			Manifest:   e.mf,
			Reader:     e.reader,
			Writer:     e.writer,
			Registry:   e.registry,
			Pipeline:   e.pipeline,
			Supervisor: e.supervis,
			Cache:      e.cache,
			Metrics:    e.metrics,
		})

		srv := &http.Server{
			Addr:         e.cfg.Addr,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: e.cfg.DefaultTimeout + 10*time.Second,
			IdleTimeout:  120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			e.log.Info().Str("addr", e.cfg.Addr).Msg("lake listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			e.log.Info().Msg("shutdown signal received")
		case err := <-errCh:
			e.log.Error().Err(err).Msg("server failed")
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.GracefulTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			e.log.Error().Err(err).Msg("graceful shutdown failed")
			return err
		}
		e.log.Info().Msg("lake stopped gracefully")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "override LAKE_ADDR for this run")
}
