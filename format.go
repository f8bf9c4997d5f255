package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// formatSize renders a file size in binary units ("1.5 KB", "512 B").
func formatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	v := float64(n) / 1024
	unit := 0

	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}

	return fmt.Sprintf("%.1f %s", v, sizeUnits[unit])
}

// formatUploaded renders an upload time for listings. Files whose upload
// time the server did not report in a readable form show as "-".
func formatUploaded(t, now time.Time) string {
	switch {
	case t.IsZero():
		return "-"
	case t.Year() == now.Year():
		return t.Local().Format("Jan _2 15:04")
	default:
		return t.Local().Format("Jan _2  2006")
	}
}

// formatExpiry renders when a share link stops working.
func formatExpiry(expires *time.Time, now time.Time) string {
	switch {
	case expires == nil:
		return "never"
	case !expires.After(now):
		return "expired"
	default:
		return formatUploaded(*expires, now)
	}
}

// printTable writes headers and rows as space-aligned columns.
func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	_ = tw.Flush() //nolint:errcheck // best-effort terminal output
}
