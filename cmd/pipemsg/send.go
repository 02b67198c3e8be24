package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pipemsg/client"
	"pipemsg/loadbalance"
	"pipemsg/registry"
)

type sendFlags struct {
	Service  string
	Key      string
	Balancer string
}

var sendOpts sendFlags

var sendCmd = &cobra.Command{
	Use:   "send <message...>",
	Short: "Send one message and print the response",
	Long: `send performs a single exchange and prints the response text.

With --service the endpoint is discovered in the configured registry instead of
taken from --endpoint; --key pins the choice with consistent hashing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, closeRegistry, err := newClient()
		if err != nil {
			return err
		}
		defer closeRegistry()
		defer cli.Close()

		msg := strings.Join(args, " ")
		ctx := cmd.Context()

		var (
			resp string
			ok   bool
		)
		switch {
		case sendOpts.Service != "" && sendOpts.Key != "":
			resp, ok = cli.CallKeyed(ctx, sendOpts.Service, sendOpts.Key, msg)
		case sendOpts.Service != "":
			resp, ok = cli.Call(ctx, sendOpts.Service, msg)
		default:
			var err error
			resp, err = cli.TryExchange(ctx, cfg.Endpoint, msg)
			if err != nil {
				return err
			}
			ok = true
		}
		if !ok {
			return errors.New("no response")
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp)
		return nil
	},
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendOpts.Service, "service", "", "discover the endpoint under this registry service")
	f.StringVar(&sendOpts.Key, "key", "", "consistent-hash key for --service")
	f.StringVar(&sendOpts.Balancer, "balancer", "round_robin", "round_robin|weighted_random")
}

// newClient builds a client from the loaded config. The returned func releases
// the registry connection, if any.
func newClient() (*client.Client, func(), error) {
	opts := []client.Option{
		client.WithLogger(logger),
		client.WithTimeout(cfg.DialTimeout),
		client.WithSocketDir(cfg.SocketDir),
		client.WithCodec(cfg.Codec()),
		client.WithLimits(cfg.Limits()),
	}
	release := func() {}

	if sendOpts.Service != "" {
		if !cfg.Registry.Enabled() {
			return nil, nil, errors.New("--service needs [registry] endpoints in the config")
		}
		etcd, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("connect registry: %w", err)
		}
		release = func() { _ = etcd.Close() }
		opts = append(opts, client.WithRegistry(etcd, loadbalance.New(sendOpts.Balancer)))
	}
	return client.NewClient(opts...), release, nil
}

// commandContext bounds an exchange started from the command line so a server
// that never answers cannot hang the process forever.
func commandContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
