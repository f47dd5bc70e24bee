package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/config"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/relay"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/ui"
)

var flagListenAddr string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay server",
	Long: `Run the publish/subscribe relay both participants connect to. Messages
published to /app/room/{id} are delivered to every subscriber of
/topic/room/{id}.

Examples:
  teleconsult relay
  teleconsult relay --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := configOptions()
		opts.ListenAddr = flagListenAddr
		cfg, err := config.Load(opts)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runRelay(cmd.Context(), cfg.ListenAddr)
	},
}

func runRelay(ctx context.Context, addr string) error {
	logger := slog.Default().With("component", "relay")

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := relay.NewHub(logger)
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           relay.NewServer(hub, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	ui.PrintInfof("Relay listening on %s", addr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Relay shutdown", "error", err)
	}
	stopHub()
	<-hub.Done()
	ui.PrintSuccess("Relay stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.Flags().StringVar(&flagListenAddr, "addr", "", "Listen address (default :8080)")
}
