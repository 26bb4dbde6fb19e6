package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/hongkiaong/lacpd/pkg/auth"
	"github.com/hongkiaong/lacpd/pkg/config"
	"github.com/hongkiaong/lacpd/pkg/console"
	"github.com/hongkiaong/lacpd/pkg/device"
	"github.com/hongkiaong/lacpd/pkg/mgmt"
	"github.com/hongkiaong/lacpd/pkg/netio"
	"github.com/hongkiaong/lacpd/pkg/statedb"
	"github.com/hongkiaong/lacpd/pkg/util"
)

// linkPollInterval re-reads carriers in case a netlink update is lost.
const linkPollInterval = 10 * time.Second

var (
	configPath  string
	redisAddr   string
	listenAddr  string
	hostKeyPath string
	noNetIO     bool
	dataPath    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control plane",
	Long: `Run the control plane for the switch described by --config.

The startup configuration creates the LAGs and VLANs; later changes come
from the admin console (lagctl exec, or ssh to --listen).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if redisAddr != "" {
			cfg.Redis = redisAddr
		}
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx, cfg)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Check a startup configuration without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		if _, err := boot(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d ports, %d LAGs, %d VLANs, %d users: OK\n",
			cfg.Device, len(cfg.Ports), len(cfg.LAGs), len(cfg.VLANs), len(cfg.Users))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Startup configuration (YAML)")
	runCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address for state publication (overrides config)")
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Management SSH address (overrides config)")
	runCmd.Flags().StringVar(&hostKeyPath, "host-key", "", "SSH host key file, created if missing (default: ephemeral)")
	runCmd.Flags().BoolVar(&noNetIO, "no-netio", false, "Run without packet I/O; links stay down")
	runCmd.Flags().BoolVar(&dataPath, "data-path", false, "Capture and switch data frames, not only LACPDUs")
}

// boot creates the device and applies the startup LAGs and VLANs.
func boot(cfg *config.Config) (*device.Device, error) {
	dc, err := cfg.DeviceConfig()
	if err != nil {
		return nil, err
	}
	d, err := device.New(dc)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(d); err != nil {
		return nil, fmt.Errorf("applying startup config: %w", err)
	}
	return d, nil
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	d, err := boot(cfg)
	if err != nil {
		return err
	}

	var srv *mgmt.Server
	if users := cfg.Passwords(); len(users) > 0 {
		key, err := hostKey()
		if err != nil {
			return err
		}
		if srv, err = mgmt.NewServer(console.New(d), users, key); err != nil {
			return err
		}
		srv.SetChecker(auth.NewChecker(cfg.Roles()))
		logger, err := cfg.AuditLogger()
		if err != nil {
			return err
		}
		if logger != nil {
			defer logger.Close()
			srv.SetAuditLogger(logger, cfg.Device)
			util.Infof("auditing commands to %s", logger.Path())
		}
	} else {
		util.Warnf("no users configured, management plane disabled")
	}

	if cfg.Redis != "" {
		pub := statedb.NewPublisher(cfg.Redis)
		if err := pub.Connect(ctx); err != nil {
			return err
		}
		defer pub.Close()
		d.SetPublisher(pub)
		util.Infof("publishing state to %s", cfg.Redis)
	}

	var nio *netio.IO
	ifaces := cfg.Interfaces()
	if !noNetIO {
		if nio, err = netio.Open(cfg.Device, ifaces, netio.Options{DataPath: dataPath}); err != nil {
			return err
		}
		defer nio.Close()
		d.SetTransmitter(nio)
	}

	g, ctx := errgroup.WithContext(ctx)
	if nio != nil {
		poller := netio.NewLinkPoller(cfg.Device, ifaces)
		g.Go(func() error { return nio.Run(ctx, d) })
		g.Go(func() error { return poller.Run(ctx, linkPollInterval, d) })
	}
	g.Go(func() error {
		if err := d.Run(ctx, cfg.Tick); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if srv != nil {
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Listen) })
	}

	err = g.Wait()
	util.Infof("%s stopped", cfg.Device)
	return err
}

func hostKey() (ssh.Signer, error) {
	if hostKeyPath == "" {
		return mgmt.GenerateHostKey()
	}
	return mgmt.LoadHostKey(hostKeyPath)
}
