package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/foreman/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordinator: polling scheduler plus callback API",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, logger, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		srv := &http.Server{
			Addr:    rt.Config.Server.Addr,
			Handler: rt.Handler,
		}
		serverErr := make(chan error, 1)
		go func() {
			logger.Info("callback API listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		schedulerDone := make(chan struct{})
		go func() {
			rt.Scheduler.Run(sc)
			close(schedulerDone)
		}()

		select {
		case err := <-serverErr:
			sc.Cancel()
			<-schedulerDone
			return fmt.Errorf("callback API failed: %w", err)
		case <-sc.Done():
		}

		if sig := sc.Signal(); sig != nil {
			logger.Info("shutting down", "signal", sig.String())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("callback API shutdown incomplete", "err", err)
		}
		<-schedulerDone
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
