package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sakateka/mdns-relay/internal/config"
	"github.com/sakateka/mdns-relay/internal/ifaddr"
	"github.com/sakateka/mdns-relay/internal/logging"
	"github.com/sakateka/mdns-relay/internal/relay"
	"github.com/sakateka/mdns-relay/internal/version"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:     "mdns-relay",
	Short:   "Relay multicast discovery traffic between network segments",
	Version: version.Version(),
	Run: func(_ *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			if errors.Is(err, Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	ifaces, err := ifaddr.Resolve(cfg.Interfaces)
	if err != nil {
		return fmt.Errorf("failed to resolve interfaces: %w", err)
	}
	for _, iface := range ifaces {
		log.Infof("relay interface %s", iface)
	}

	forwarder := relay.NewUDPForwarder(cfg.Port, relay.WithLog(log))
	router, err := relay.NewRouter(
		relay.RouterConfig{
			Group:          cfg.Group,
			Port:           cfg.Port,
			ReceiveTimeout: cfg.ReceiveTimeout,
			BufferSize:     int(cfg.BufferSize.Bytes()),
		},
		ifaces,
		forwarder,
		relay.WithLog(log),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}
	defer router.Close()

	wg, ctx := errgroup.WithContext(context.Background())
	wg.Go(func() error {
		return router.Run(ctx)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// Is makes any Interrupted match the zero Interrupted target, so the
// caller does not need to know which signal arrived.
func (m Interrupted) Is(target error) bool {
	_, ok := target.(Interrupted)
	return ok
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is
// received or the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}
