package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/climatewatch/auditview/internal/audit"
)

const browseHelp = `commands:
  n            next page
  p            previous page
  g <page>     go to page (1-based)
  s <size>     page size (10, 20, 50, 100)
  x <id>       expand or collapse an event
  r            reload the current page
  q            quit`

func newBrowseCommand(opts *rootOptions) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through audit events interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !audit.ValidPageSize(size) {
				return fmt.Errorf("%w: %d (choose one of %v)", audit.ErrInvalidPageSize, size, audit.PageSizes)
			}
			fetcher, err := opts.fetcherFor()
			if err != nil {
				return err
			}
			vm := audit.NewTableViewModel(fetcher, nil)
			vm.Restore(0, size, nil)
			return browse(cmd.Context(), vm, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&size, "size", audit.DefaultPageSize, "Initial page size")
	return cmd
}

// browse runs the line-driven pager until q, EOF or cancellation.
func browse(ctx context.Context, vm *audit.TableViewModel, in io.Reader, out io.Writer) error {
	render := func() {
		view := vm.Table()
		WriteTable(out, view, true)
		WritePager(out, view)
	}
	report := func(err error) error {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}

	if err := report(vm.Load(ctx)); err != nil {
		return err
	}
	render()

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
		arg = strings.TrimSpace(arg)

		var err error
		switch cmd {
		case "":
			continue
		case "q", "quit":
			return nil
		case "h", "help", "?":
			_, _ = fmt.Fprintln(out, browseHelp)
			continue
		case "n":
			if !vm.CanGoNext() {
				_, _ = fmt.Fprintln(out, "already on the last page")
				continue
			}
			err = vm.NextPage(ctx)
		case "p":
			if !vm.CanGoPrev() {
				_, _ = fmt.Fprintln(out, "already on the first page")
				continue
			}
			err = vm.PrevPage(ctx)
		case "g":
			n, convErr := strconv.Atoi(arg)
			if convErr != nil || n < 1 {
				_, _ = fmt.Fprintln(out, "usage: g <page>")
				continue
			}
			err = vm.SetPage(ctx, n-1)
		case "s":
			n, convErr := strconv.Atoi(arg)
			if convErr != nil {
				_, _ = fmt.Fprintln(out, "usage: s <size>")
				continue
			}
			err = vm.SetPageSize(ctx, n)
			if errors.Is(err, audit.ErrInvalidPageSize) {
				_, _ = fmt.Fprintf(out, "page size must be one of %v\n", audit.PageSizes)
				continue
			}
		case "x":
			if arg == "" {
				_, _ = fmt.Fprintln(out, "usage: x <id>")
				continue
			}
			vm.ToggleExpanded(arg)
		case "r":
			err = vm.Refresh(ctx)
		default:
			_, _ = fmt.Fprintf(out, "unknown command %q\n", cmd)
			_, _ = fmt.Fprintln(out, browseHelp)
			continue
		}
		if err := report(err); err != nil {
			return err
		}
		render()
	}
}
