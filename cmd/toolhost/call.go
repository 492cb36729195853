package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/toolhost/internal/adapter/rpc"
	"github.com/bobmcallan/toolhost/internal/config"
)

func newCallCmd() *cobra.Command {
	var (
		network string
		address string
		timeout time.Duration
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "call <method> [json-params]",
		Short: "Call a tool on a running server over RPC",
		Long: `Sends one RPC request and prints the result as JSON.

The method is a tool name or the full /<package>.<Service>/<tool> form.
Parameters are a JSON object; bytes parameters take base64 strings.`,
		Example: `  toolhost call add '{"a": 2, "b": 3}'
  toolhost call save --raw > state.bin`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.Overrides{})
			if err != nil {
				return err
			}
			if network == "" {
				network = cfg.RPC.Network
			}
			if address == "" {
				address = cfg.RPC.Address
			}

			var params map[string]any
			if len(args) == 2 {
				if params, err = parseParams(args[1]); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := rpc.NewClient(network, address).Call(ctx, args[0], params)
			if err != nil {
				return err
			}

			if b, ok := result.([]byte); ok && raw {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("printing result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&network, "network", "", "RPC network, tcp or unix (default from config)")
	flags.StringVar(&address, "address", "", "RPC address (default from config)")
	flags.DurationVar(&timeout, "timeout", 60*time.Second, "call timeout")
	flags.BoolVar(&raw, "raw", false, "write bytes results unencoded")

	return cmd
}

// parseParams decodes a JSON object, keeping integers exact.
func parseParams(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	for k, v := range params {
		params[k] = exactNumbers(v)
	}
	return params, nil
}

// exactNumbers replaces json.Number with int64 or float64 so the CBOR
// request carries numbers rather than numeric strings.
func exactNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = exactNumbers(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = exactNumbers(x[k])
		}
	}
	return v
}
