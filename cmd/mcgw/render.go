package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tturner/mcgw/internal/mc"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dirStyle    = cellStyle.Foreground(lipgloss.Color("10"))
	errStyle    = cellStyle.Foreground(lipgloss.Color("9"))
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// headerRow is the row index lipgloss v0.11 passes for the header; data rows
// follow from 1.
const headerRow = 0

// renderTable draws rows under headers with a rounded border. style, when
// set, receives the zero-based index into rows.
func renderTable(headers []string, rows [][]string, style func(row, col int) lipgloss.Style) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(metaStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == headerRow {
				return headerStyle
			}
			if style != nil {
				return style(row-1, col)
			}
			return cellStyle
		})
	return t.String()
}

func entryRows(entries []mc.FileEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		size := strconv.FormatUint(uint64(e.Size), 10)
		kind := "file"
		if e.IsDir() {
			size, kind = "", "dir"
		}
		modified := ""
		if !e.Modified.IsZero() {
			modified = e.Modified.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{e.FullName(), kind, size, modified, "0x" + strconv.FormatUint(uint64(e.Attributes), 16)})
	}
	return rows
}

// renderEntries draws a directory listing; directories are highlighted.
func renderEntries(entries []mc.FileEntry) string {
	rows := entryRows(entries)
	return renderTable([]string{"Name", "Type", "Size", "Modified", "Attr"}, rows, func(row, col int) lipgloss.Style {
		if row >= 0 && row < len(rows) && rows[row][1] == "dir" {
			return dirStyle
		}
		return cellStyle
	})
}
