package ui

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/organizer"
)

// Align selects the alignment of a table column.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// maxCell bounds path columns so a table stays readable in a terminal.
const maxCell = 60

// RenderTable renders rows under headers. Rows shorter than headers are
// padded with empty cells.
func RenderTable(headers []string, rows [][]string, aligns []Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	if IsTerminal() {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}
	// Headers keep the caller's casing.
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    maxCell,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// PreviewTable lists the proposal of every item in a batch.
func PreviewTable(items []*database.RenameItem) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		proposed := it.NewPath
		if it.ErrorMessage != "" {
			proposed = it.ErrorMessage
		}
		rows = append(rows, []string{
			fmt.Sprint(it.ID),
			Status(it.Status),
			FormatConfidence(it.OverallConfidence),
			it.OriginalName,
			proposed,
		})
	}
	return RenderTable(
		[]string{"ID", "Status", "Conf", "Original", "Proposed"},
		rows,
		[]Align{AlignRight, AlignLeft, AlignRight, AlignLeft, AlignLeft},
	)
}

// OutcomeTable lists what execute or rollback did per item.
func OutcomeTable(items []organizer.ItemOutcome) string {
	rows := make([][]string, 0, len(items))
	for _, o := range items {
		detail := o.NewPath
		if o.Error != "" {
			detail = string(o.ErrorCode) + ": " + o.Error
		}
		rows = append(rows, []string{
			fmt.Sprint(o.ItemID),
			outcome(o.Outcome),
			filepath.Base(o.OriginalPath),
			detail,
		})
	}
	return RenderTable([]string{"ID", "Outcome", "File", "Detail"}, rows,
		[]Align{AlignRight, AlignLeft, AlignLeft, AlignLeft})
}

// ScrapeTable lists the items of a scrape job with their sidecars.
func ScrapeTable(items []*database.ScrapeItem) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		sidecars := ""
		if it.NFOPath != "" {
			sidecars += "nfo "
		}
		if it.PosterPath != "" {
			sidecars += "poster "
		}
		if it.FanartPath != "" {
			sidecars += "fanart"
		}
		target := it.NewPath
		if it.ErrorCode != "" {
			target = it.ErrorCode + ": " + it.ErrorMessage
		}
		rows = append(rows, []string{
			fmt.Sprint(it.ID),
			Status(it.Status),
			it.OriginalName,
			target,
			sidecars,
		})
	}
	return RenderTable([]string{"ID", "Status", "Original", "Target", "Sidecars"}, rows,
		[]Align{AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignLeft})
}

// CountersTable summarizes batch or job counters.
func CountersTable(c database.Counters) string {
	return RenderTable([]string{"Total", "Success", "Failed", "Skipped"},
		[][]string{{fmt.Sprint(c.Total), fmt.Sprint(c.Success), fmt.Sprint(c.Failed), fmt.Sprint(c.Skipped)}},
		[]Align{AlignRight, AlignRight, AlignRight, AlignRight})
}

func outcome(o string) string {
	switch o {
	case organizer.OutcomeSuccess:
		return Success(o)
	case organizer.OutcomeFailed:
		return Error(o)
	}
	return Dim(o)
}
