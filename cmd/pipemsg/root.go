package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pipemsg/codec"
	"pipemsg/config"
	"pipemsg/logging"
)

type globalFlags struct {
	ConfigPath  string
	Endpoint    string
	SocketDir   string
	DialTimeout time.Duration
	Encoding    string
	LogLevel    string
}

var (
	flags  globalFlags
	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipemsg",
	Short: "Request/response messaging over local named pipes",
	Long: `pipemsg serves a named pipe endpoint and sends messages to one.

Each exchange opens a connection, writes one length-prefixed UTF-16 frame,
reads one frame back and disconnects.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flags.ConfigPath)
		if err != nil {
			return err
		}
		if err := applyFlagOverrides(cmd, &cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logging.SetLogger(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "TOML config file")
	pf.StringVarP(&flags.Endpoint, "endpoint", "e", "", "endpoint name (overrides config)")
	pf.StringVar(&flags.SocketDir, "socket-dir", "", "directory for unix socket files")
	pf.DurationVar(&flags.DialTimeout, "timeout", 0, "connect timeout (default 5s)")
	pf.StringVar(&flags.Encoding, "encoding", "", "frame text encoding: utf16|utf8")
	pf.StringVar(&flags.LogLevel, "log-level", "", "debug|info|warn|error|off")

	rootCmd.AddCommand(serveCmd, sendCmd, callCmd)
}

func applyFlagOverrides(cmd *cobra.Command, c *config.Config) error {
	fs := cmd.Flags()
	if fs.Changed("endpoint") {
		c.Endpoint = flags.Endpoint
	}
	if fs.Changed("socket-dir") {
		c.SocketDir = flags.SocketDir
	}
	if fs.Changed("timeout") {
		c.DialTimeout = flags.DialTimeout
	}
	if fs.Changed("encoding") {
		t, err := codec.ParseCodecType(flags.Encoding)
		if err != nil {
			return err
		}
		c.Encoding = t
	}
	if fs.Changed("log-level") {
		c.Log.Level = flags.LogLevel
	}
	return nil
}
