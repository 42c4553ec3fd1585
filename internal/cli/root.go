// Package cli implements meetctl, a terminal client for meeting rooms.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/reconcile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type app struct {
	cfg      *config.Config
	server   string
	interval time.Duration
	asJSON   bool
	logLevel string
}

func (a *app) client() *reconcile.Client { return reconcile.NewClient(a.server) }

func (a *app) poller() *reconcile.Poller {
	return &reconcile.Poller{Client: a.client(), Interval: a.interval}
}

// print writes v as JSON with --json, otherwise the rendered text.
func (a *app) print(w io.Writer, v any, text string) error {
	if a.asJSON {
		return writeJSON(w, v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// signalURL is the call signaling endpoint: the flag when set, otherwise
// the server's own /api/ws/signal.
func (a *app) signalURL(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	u, err := url.Parse(a.server)
	if err != nil {
		return "", fmt.Errorf("invalid --server: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/signal"
	return u.String(), nil
}

// loadConfig reads the same config file and MEET_ variables as the server.
// Flag defaults come from it.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Str("module", "cli").Msg("config ignored")
		return config.Defaults()
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func NewRootCmd() *cobra.Command {
	a := &app{cfg: loadConfig()}
	root := &cobra.Command{
		Use:   "meetctl",
		Short: "Create, join and moderate meeting rooms from the terminal",
		Long: `meetctl drives the meeting room API: create a room, join its waiting
room, approve guests as the host and wait for admission as a guest.

Examples:
  meetctl create Alice
  meetctl join <room> Bob
  meetctl host <room> --auto-approve
  meetctl wait <room> <identity> --call --token <token>`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			lvl, err := zerolog.ParseLevel(a.logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			zerolog.SetGlobalLevel(lvl)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.server, "server", envOr("MEET_SERVER", "http://localhost:8080"), "meeting server base URL")
	interval := a.cfg.Poll.Interval
	if interval <= 0 {
		interval = reconcile.DefaultInterval
	}
	pf.DurationVar(&a.interval, "interval", interval, "polling interval")
	pf.BoolVar(&a.asJSON, "json", false, "print JSON instead of tables")
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newCreateCmd(a),
		newJoinCmd(a),
		newStatusCmd(a),
		newRoomsCmd(a),
		newWaitingCmd(a),
		newApproveCmd(a),
		newLeaveCmd(a),
		newEndCmd(a),
		newWaitCmd(a),
		newHostCmd(a),
		newTokenCmd(a),
	)
	return root
}

func Execute() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		cancel()
		os.Exit(1)
	}
}
