package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/climatewatch/auditview/internal/audit"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	var (
		page   int
		size   int
		expand []string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of audit events",
		Example: `  auditctl list
  auditctl list --page 2 --size 50 -o wide
  auditctl list --expand 17 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(opts.output)
			if err != nil {
				return err
			}
			if page < 0 {
				return fmt.Errorf("--page must not be negative")
			}
			if !audit.ValidPageSize(size) {
				return fmt.Errorf("%w: %d (choose one of %v)", audit.ErrInvalidPageSize, size, audit.PageSizes)
			}
			fetcher, err := opts.fetcherFor()
			if err != nil {
				return err
			}

			vm := audit.NewTableViewModel(fetcher, nil)
			vm.Restore(page, size, expand)
			if err := vm.Load(cmd.Context()); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				return fmt.Errorf("load audit page: %s", audit.Message(err))
			}

			out := cmd.OutOrStdout()
			switch format {
			case FormatJSON, FormatYAML:
				return WritePage(out, format, vm.Snapshot().Data)
			default:
				WriteTable(out, vm.Table(), format == FormatWide)
				return nil
			}
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "Zero-based page index")
	cmd.Flags().IntVar(&size, "size", audit.DefaultPageSize, "Page size (10, 20, 50 or 100)")
	cmd.Flags().StringSliceVar(&expand, "expand", nil, "Item ids whose full record is printed")
	return cmd
}
