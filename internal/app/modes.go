package app

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"matrixmcp/internal/config"
	"matrixmcp/pkg/logging"
)

// runServer listens on the configured address and serves until ctx is
// cancelled or SIGINT/SIGTERM arrives, then drains connections and closes
// every cached session.
//
// When started by systemd with Type=notify, readiness is reported once the
// listener is bound and stopping once shutdown begins.
func runServer(ctx context.Context, settings config.Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(settings.Server.Host, strconv.Itoa(settings.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	notify(daemon.SdNotifyReady)
	logging.Info("CLI", "Server started. Press Ctrl+C to stop.")

	go func() {
		<-ctx.Done()
		logging.Info("CLI", "Shutting down")
		notify(daemon.SdNotifyStopping)
	}()

	return services.Server.Serve(ctx, ln)
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn("CLI", "Failed to notify systemd (%s): %v", state, err)
		return
	}
	if sent {
		logging.Debug("CLI", "Notified systemd: %s", state)
	}
}
