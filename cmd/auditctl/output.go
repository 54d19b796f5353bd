package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/climatewatch/auditview/internal/audit"
)

// Format selects how a page is printed.
type Format string

const (
	FormatTable Format = "table"
	FormatWide  Format = "wide"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func parseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatWide, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// WritePage prints the raw page as JSON or YAML. Items keep the fields the
// backend sent.
func WritePage(w io.Writer, format Format, page *audit.Page) error {
	data, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		return err
	}
	switch format {
	case FormatJSON:
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("%s format requires a table writer", format)
	}
}

// WriteTable prints the rendered table. Wide output adds the item id and
// expansion marker.
func WriteTable(w io.Writer, view audit.TableView, wide bool) {
	if view.Status != audit.StatusReady {
		_, _ = fmt.Fprintln(w, view.Message)
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	if wide {
		_, _ = fmt.Fprint(tw, "ID\t")
	}
	for i, col := range view.Columns {
		sep := "\t"
		if i == len(view.Columns)-1 {
			sep = "\n"
		}
		_, _ = fmt.Fprint(tw, col.Title+sep)
	}
	for _, row := range view.Rows {
		if wide {
			marker := "+"
			if row.Expanded {
				marker = "-"
			}
			_, _ = fmt.Fprintf(tw, "%s %s\t", marker, row.ID)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ReceivedAt, row.Channel, row.Module, row.Temperature, row.Humidity, row.Pressure)
	}
	_ = tw.Flush()
	for _, row := range view.Rows {
		if row.Expanded && row.Detail != "" {
			_, _ = fmt.Fprintf(w, "\n[%s]\n%s\n", row.ID, row.Detail)
		}
	}
	_, _ = fmt.Fprintln(w, view.Summary)
}

// WritePager prints the page window and navigation hints.
func WritePager(w io.Writer, view audit.TableView) {
	if len(view.Buttons) > 0 {
		for _, b := range view.Buttons {
			if b.Current {
				_, _ = fmt.Fprintf(w, "[%s] ", b.Label)
			} else {
				_, _ = fmt.Fprintf(w, "%s ", b.Label)
			}
		}
		_, _ = fmt.Fprintln(w)
	}
	prev, next := "-", "-"
	if view.CanPrev {
		prev = "p"
	}
	if view.CanNext {
		next = "n"
	}
	_, _ = fmt.Fprintf(w, "size %d | prev:%s next:%s | g <page> s <size> x <id> r q\n", view.Size, prev, next)
}
