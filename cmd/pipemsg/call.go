package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pipemsg/rpc"
)

var callWait time.Duration

var callCmd = &cobra.Command{
	Use:     "call <Service.Method> [json-args]",
	Short:   "Invoke a method on an endpoint served with --mode rpc",
	Example: `  pipemsg call Health.Ping '{"message":"hi"}'`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := json.RawMessage("{}")
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("args are not valid JSON: %s", args[1])
			}
			params = json.RawMessage(args[1])
		}

		cli, closeRegistry, err := newClient()
		if err != nil {
			return err
		}
		defer closeRegistry()
		defer cli.Close()

		ctx, cancel := commandContext(cmd.Context(), callWait)
		defer cancel()

		var reply json.RawMessage
		if err := rpc.Call(ctx, cli, cfg.Endpoint, args[0], params, &reply); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(reply))
		return nil
	},
}

func init() {
	callCmd.Flags().DurationVar(&callWait, "wait", 30*time.Second, "give up when the whole call takes longer (0 = never)")
}
