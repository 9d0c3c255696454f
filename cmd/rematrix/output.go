package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// renderTable writes rows as a rounded table on a terminal and as
// tab-separated lines otherwise, so output stays scriptable through pipes.
func renderTable(cmd *cobra.Command, headers []string, rows [][]string) {
	out := cmd.OutOrStdout()

	if file, ok := out.(*os.File); !ok || !isatty.IsTerminal(file.Fd()) {
		fmt.Fprintln(out, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(out, strings.Join(row, "\t"))
		}
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)

	headerRow := make(table.Row, len(headers))
	configs := make([]table.ColumnConfig, len(headers))
	for i, header := range headers {
		headerRow[i] = header
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft}
	}
	t.AppendHeader(headerRow)
	t.SetColumnConfigs(configs)

	for _, row := range rows {
		tableRow := make(table.Row, len(row))
		for i, cell := range row {
			tableRow[i] = cell
		}
		t.AppendRow(tableRow)
	}
	t.Render()
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
