package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/mixwizard-cli/internal/server"
	"github.com/KaramelBytes/mixwizard-cli/internal/store"
	"github.com/KaramelBytes/mixwizard-cli/internal/utils"
)

var (
	serveAddr    string
	serveDriver  string
	serveDSN     string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local development backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("addr") {
			c.ServerAddr = serveAddr
		}
		if f.Changed("store") {
			c.StoreDriver = serveDriver
		}
		if f.Changed("dsn") {
			c.StoreDSN = serveDSN
		}
		if f.Changed("data-dir") {
			c.DataDir = serveDataDir
		}

		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dsn := c.StoreDSN
		if c.StoreDriver == "file" && dsn == "" {
			dsn = expandHome(c.LocalStoreDir)
		}
		st, err := store.Open(ctx, store.Config{Driver: c.StoreDriver, DSN: dsn})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		dataDir := expandHome(c.DataDir)
		if err := utils.EnsureDir(dataDir); err != nil {
			return err
		}
		srv := server.New(st, dataDir).HTTPServer(c.ServerAddr)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info().Str("addr", c.ServerAddr).Str("store", c.StoreDriver).Str("data_dir", dataDir).Msg("backend listening")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Listening on %s (store: %s)\n", c.ServerAddr, c.StoreDriver)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Info().Msg("shutting down backend")
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
	serveCmd.Flags().StringVar(&serveDriver, "store", "", "store driver: "+fmt.Sprint(store.Drivers())+" (overrides store_driver)")
	serveCmd.Flags().StringVar(&serveDSN, "dsn", "", "store DSN: directory for file, connection string for sqlite/postgres")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "directory holding uploaded datasets (overrides data_dir)")
}
