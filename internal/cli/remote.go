package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/mirador-forecast/internal/api"
)

const remoteTimeout = 2 * time.Minute

// callRemote dials the engine, invokes method and writes the JSON response.
func callRemote(cmd *cobra.Command, addr, method string, req any) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
	defer cancel()

	var out map[string]any
	if err := api.NewClient(conn).Call(ctx, method, req, &out); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func requireServer(opts *globalOptions) error {
	if opts.server == "" {
		return fmt.Errorf("--server is required for this command")
	}
	return nil
}

func newAlertsCommand(opts *globalOptions) *cobra.Command {
	var req api.ListAlertsRequest
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List alerts held by a running engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(opts); err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			return callRemote(cmd, opts.server, api.MethodListAlerts, req)
		},
	}
	cmd.Flags().StringVar(&req.Severity, "severity", "", "Filter by severity (critical, warning, info)")
	cmd.Flags().BoolVar(&req.IncludeHistory, "history", false, "Include alert history")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Limit history entries")

	ack := &cobra.Command{
		Use:   "ack ID",
		Short: "Acknowledge an active alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(opts); err != nil {
				return err
			}
			return callRemote(cmd, opts.server, api.MethodAcknowledgeAlert, api.AlertRequest{ID: args[0]})
		},
	}
	resolve := &cobra.Command{
		Use:   "resolve ID",
		Short: "Resolve an active alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(opts); err != nil {
				return err
			}
			return callRemote(cmd, opts.server, api.MethodResolveAlert, api.AlertRequest{ID: args[0]})
		},
	}
	patterns := &cobra.Command{
		Use:   "patterns DEPLOYMENT",
		Short: "Show recurring root causes for a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(opts); err != nil {
				return err
			}
			return callRemote(cmd, opts.server, api.MethodGetPatterns, api.PatternsRequest{Deployment: args[0]})
		},
	}
	cmd.AddCommand(ack, resolve, patterns)
	return cmd
}

func newHealthCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show engine and model health",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireServer(opts); err != nil {
				return err
			}
			return callRemote(cmd, opts.server, api.MethodHealthCheck, nil)
		},
	}
}
