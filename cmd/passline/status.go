// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const statusTimeout = 2 * time.Second

// ProbeStatus holds the result of the health probes of a running server.
type ProbeStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	addr       string
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running server",
		Long: `Query the liveness and readiness probes of a running server on its
metrics address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.addr, "addr", "", "metrics address to probe (default: metrics-addr)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	addr := cfg.addr
	if addr == "" {
		loaded, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		addr = loaded.MetricsAddr
	}
	if addr == "" {
		return fmt.Errorf("no metrics address: pass --addr or set metrics_addr")
	}

	status := probe(cmd.Context(), &http.Client{Timeout: statusTimeout}, addr)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Println(formatStatusTable(status))
	return nil
}

// probe queries the liveness and readiness endpoints at addr.
func probe(ctx context.Context, client *http.Client, addr string) ProbeStatus {
	status := ProbeStatus{Addr: addr}
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	live, err := get(ctx, client, base+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Running = live == http.StatusOK

	ready, err := get(ctx, client, base+"/healthz/readiness")
	if err != nil {
		status.Error = fmt.Sprintf("readiness probe failed: %v", err)
		return status
	}
	status.Ready = ready == http.StatusOK
	return status
}

func get(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ProbeStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDR\tSTATUS\tREADY")
	switch {
	case status.Running:
		_, _ = fmt.Fprintf(w, "%s\trunning\t%t\n", status.Addr, status.Ready)
	case status.Error != "":
		_, _ = fmt.Fprintf(w, "%s\tstopped\t%s\n", status.Addr, status.Error)
	default:
		_, _ = fmt.Fprintf(w, "%s\tunhealthy\t%t\n", status.Addr, status.Ready)
	}

	_ = w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}
