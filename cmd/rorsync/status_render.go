package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	base := fmt.Sprintf("%s: [%s]", label, statusKindLabel(kind))
	if message != "" {
		base += " " + message
	}
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// summaryRow is one metric line of a run summary.
type summaryRow struct {
	label string
	value string
}

func count(label string, n int) summaryRow {
	return summaryRow{label: label, value: strconv.Itoa(n)}
}

// printSummary writes the metrics table followed by a status line whose
// severity reflects err and the number of failures.
func printSummary(out io.Writer, command string, rows []summaryRow, failures int, err error) {
	tableRows := make([][]string, 0, len(rows))
	for _, row := range rows {
		tableRows = append(tableRows, []string{row.label, row.value})
	}
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, tableRows, []columnAlignment{alignLeft, alignRight}))

	kind, message := statusOK, "completed"
	switch {
	case err != nil:
		kind, message = statusError, strings.TrimSpace(err.Error())
	case failures > 0:
		kind, message = statusWarn, fmt.Sprintf("completed with %d failures; see the audit log", failures)
	}
	fmt.Fprintln(out, renderStatusLine(command, kind, message, shouldColorize(out)))
}
