// cmd/monitor/render.go
package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"ihydro/internal/alerts"
	"ihydro/internal/models"
	"ihydro/internal/monitor"
	"ihydro/pkg/thresholds"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if unit == "" {
		return s
	}
	return s + " " + unit
}

// renderReading prints one line per metric with its range status.
func renderReading(w io.Writer, r models.Reading, reg *thresholds.Registry) {
	fmt.Fprintln(w, titleStyle.Render("Reading at "+r.Timestamp))
	for _, m := range models.AllMetrics {
		v := r.Value(m)
		rg, ok := reg.Lookup(m)
		status := mutedStyle.Render("-")
		switch {
		case ok && v < rg.Min:
			status = alertStyle.Render("LOW")
		case ok && v > rg.Max:
			status = alertStyle.Render("HIGH")
		case ok:
			status = okStyle.Render("ok")
		}
		fmt.Fprintf(w, "  %-12s %-14s %s\n", m, formatValue(v, rg.Unit), status)
	}
}

func renderHistory(w io.Writer, history []models.Reading) {
	if len(history) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no readings"))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%-25s %10s %10s %10s %8s", "timestamp", "temp", "humidity", "tds", "ph")))
	for _, r := range history {
		fmt.Fprintf(w, "%-25s %10.2f %10.2f %10.2f %8.2f\n", r.Timestamp, r.Temperature, r.Humidity, r.TDS, r.PH)
	}
}

func renderSummary(w io.Writer, s models.Summary) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Summary (%s, %d readings)", s.Range, s.Count)))
	for _, m := range models.AllMetrics {
		st := s.Stats.Get(m)
		fmt.Fprintf(w, "  %-12s min %-8s max %-8s avg %s\n", m, stat(st.Min), stat(st.Max), stat(st.Avg))
	}
}

func stat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func renderAlerts(w io.Writer, active []alerts.Alert) {
	if len(active) == 0 {
		fmt.Fprintln(w, okStyle.Render("All metrics within recommended ranges"))
		return
	}
	for _, a := range active {
		fmt.Fprintln(w, alertStyle.Render("! "+a.Message))
	}
}

// renderSnapshot prints the watch view for one poll cycle.
func renderSnapshot(w io.Writer, snap monitor.Snapshot, reg *thresholds.Registry) {
	switch {
	case snap.Loading:
		fmt.Fprintln(w, mutedStyle.Render("loading..."))
		return
	case !snap.Online:
		fmt.Fprintln(w, alertStyle.Render("sensor API offline: "+snap.LastError))
		if snap.Current == nil {
			return
		}
		fmt.Fprintln(w, mutedStyle.Render("showing last known data"))
	}

	if snap.Current != nil {
		renderReading(w, *snap.Current, reg)
	}
	renderAlerts(w, snap.Alerts)
	if snap.Hour != nil {
		renderSummary(w, *snap.Hour)
	}
	if snap.Day != nil {
		renderSummary(w, *snap.Day)
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d readings in history, updated %s",
		len(snap.History), snap.UpdatedAt.Format("15:04:05"))))
}
