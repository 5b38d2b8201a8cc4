package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/bosley/relayscribe/client"
	"github.com/bosley/relayscribe/transcript"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    72,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(cmd *cobra.Command, res transcript.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.TrimSpace(res.Text))

	if len(res.Chunks) > 0 {
		rows := make([][]string, 0, len(res.Chunks))
		for _, chunk := range res.Chunks {
			rows = append(rows, []string{
				formatSeconds(chunk.Start),
				formatSeconds(chunk.End),
				strings.TrimSpace(chunk.Text),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Start", "End", "Text"}, rows, []columnAlignment{alignRight, alignRight, alignLeft}))
	}

	summary := []string{"processed in " + formatSeconds(res.ProcessingTime)}
	if res.AudioDuration > 0 {
		summary = append(summary, "audio "+formatSeconds(res.AudioDuration))
	}
	if res.ModelUsed != "" {
		summary = append(summary, "model "+res.ModelUsed)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), strings.Join(summary, ", "))
	return nil
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(10 * time.Millisecond)
	return d.String()
}

// progressLine redraws a single status line on a terminal. It does nothing
// when the output is not a terminal.
type progressLine struct {
	w       io.Writer
	enabled bool
	last    string
	width   int
}

func newProgressLine(w io.Writer, enabled bool) *progressLine {
	return &progressLine{w: w, enabled: enabled}
}

func (p *progressLine) update(s client.Snapshot) {
	if !p.enabled {
		return
	}
	stage := string(s.Stage)
	if stage == "" {
		stage = string(s.State)
	}
	line := fmt.Sprintf("%5.1f%%  %-24s elapsed %s", s.Percentage, stage, formatSeconds(s.ElapsedTime))
	if s.EstimatedTotalTime != nil {
		line += " of ~" + formatSeconds(*s.EstimatedTotalTime)
	}
	if line == p.last {
		return
	}
	p.last = line
	p.width = max(p.width, len(line))
	fmt.Fprintf(p.w, "\r%-*s", p.width, line)
}

func (p *progressLine) finish() {
	if p.enabled && p.last != "" {
		fmt.Fprintln(p.w)
	}
}
