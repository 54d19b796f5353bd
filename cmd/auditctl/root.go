package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/climatewatch/auditview/internal/audit"
)

// Config wires the command tree to its streams. Zero values use the process
// stdio.
type Config struct {
	OutputWriter io.Writer
	InputReader  io.Reader
	// Fetcher replaces the HTTP client, for tests.
	Fetcher audit.Fetcher
}

// envDefaults seed flag defaults from the environment shared with the server.
type envDefaults struct {
	Endpoint string        `envconfig:"AUDIT_ENDPOINT" default:"http://localhost:8080/api/audit"`
	Timeout  time.Duration `envconfig:"AUDIT_FETCH_TIMEOUT" default:"10s"`
}

type rootOptions struct {
	endpoint string
	timeout  time.Duration
	output   string
	fetcher  audit.Fetcher
}

// fetcherFor returns the configured fetcher, building the HTTP client on demand.
func (o *rootOptions) fetcherFor() (audit.Fetcher, error) {
	if o.fetcher != nil {
		return o.fetcher, nil
	}
	client, err := audit.NewClient(o.endpoint, audit.WithTimeout(o.timeout), audit.WithUserAgent("auditctl"))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewRootCommand builds the auditctl command tree.
func NewRootCommand(cfg Config) *cobra.Command {
	var defaults envDefaults
	if err := envconfig.Process("", &defaults); err != nil {
		defaults = envDefaults{Endpoint: "http://localhost:8080/api/audit", Timeout: audit.DefaultTimeout}
	}
	opts := &rootOptions{fetcher: cfg.Fetcher}

	cmd := &cobra.Command{
		Use:           "auditctl",
		Short:         "Browse audit sensor events from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.timeout <= 0 {
				return fmt.Errorf("--timeout must be positive")
			}
			return nil
		},
	}
	out := cfg.OutputWriter
	if out == nil {
		out = os.Stdout
	}
	in := cfg.InputReader
	if in == nil {
		in = os.Stdin
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(in)

	cmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", defaults.Endpoint, "Audit endpoint URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Request timeout")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", string(FormatTable), "Output format: table, wide, json, yaml")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newBrowseCommand(opts))
	return cmd
}
