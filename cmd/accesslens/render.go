package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/accesslens/internal/model"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

const (
	maxEvidenceLines = 5
	chartHeight      = 8
	chartMaxBars     = 30
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle   = lipgloss.NewStyle().Bold(true)
	ruleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	sectionStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)

	deviceColors = map[model.DeviceClass]lipgloss.Style{
		model.DeviceDesktop: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Background(lipgloss.Color("39")),
		model.DeviceMobile:  lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Background(lipgloss.Color("208")),
		model.DeviceBot:     lipgloss.NewStyle().Foreground(lipgloss.Color("201")).Background(lipgloss.Color("201")),
	}
)

// queryRows is the result of an ad-hoc SQL query.
type queryRows []map[string]interface{}

// render writes v to w in the given format.
func render(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatText, "":
		_, err := io.WriteString(w, renderText(v)+"\n")
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderText(v any) string {
	switch v := v.(type) {
	case report:
		return renderReport(v)
	case []anomalyView:
		return renderAnomalies(v)
	case []model.LogRecord:
		return renderRecords(v)
	case storeOverview:
		return renderOverview(v)
	case queryRows:
		return renderRows(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func renderReport(r report) string {
	s := r.Summary
	stats := []string{
		kv("Window", s.Window),
		kv("Requests", fmt.Sprintf("%d", s.TotalRequests)),
		kv("Visitors", fmt.Sprintf("%d", s.UniqueVisitors)),
		kv("Bytes", formatBytes(s.TotalBytes)),
		kv("Status", fmt.Sprintf("2xx %d  3xx %d  4xx %d  5xx %d",
			s.Status.Success, s.Status.Redirection, s.Status.ClientError, s.Status.ServerError)),
		kv("Ingest", fmt.Sprintf("%d records, %d skipped", r.Ingest.Records, r.Ingest.Skipped)),
	}

	var paths []string
	for i, p := range s.TopPaths {
		paths = append(paths, fmt.Sprintf("%2d. %-40s %d", i+1, truncate(p.Path, 40), p.Count))
	}
	if len(paths) == 0 {
		paths = append(paths, helpStyle.Render("No requests in window"))
	}

	sections := []string{
		sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Summary"), strings.Join(stats, "\n"))),
		sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Top Paths"), strings.Join(paths, "\n"))),
		sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Traffic"), renderTraffic(s.Traffic))),
		renderAnomalies(r.Anomalies),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderTraffic draws the device breakdown series as a stacked bar chart
// with a legend of the window totals.
func renderTraffic(points []model.DevicePoint) string {
	var desktop, mobile, bot int
	for _, p := range points {
		desktop += p.Desktop
		mobile += p.Mobile
		bot += p.Bot
	}
	if desktop+mobile+bot == 0 {
		return helpStyle.Render("No data available")
	}

	if len(points) > chartMaxBars {
		points = points[len(points)-chartMaxBars:]
	}
	bc := barchart.New(len(points)*2, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(1),
		barchart.WithNoAxis(),
	)
	for _, p := range points {
		var values []barchart.BarValue
		for _, d := range []struct {
			class model.DeviceClass
			count int
		}{
			{model.DeviceDesktop, p.Desktop},
			{model.DeviceMobile, p.Mobile},
			{model.DeviceBot, p.Bot},
		} {
			if d.count > 0 {
				values = append(values, barchart.BarValue{Name: string(d.class), Value: float64(d.count), Style: deviceColors[d.class]})
			}
		}
		if len(values) == 0 {
			values = append(values, barchart.BarValue{Name: "empty", Value: 0, Style: labelStyle})
		}
		bc.Push(barchart.BarData{Label: "", Values: values})
	}
	bc.Draw()

	legend := strings.Join([]string{
		legendLine(model.DeviceDesktop, desktop),
		legendLine(model.DeviceMobile, mobile),
		legendLine(model.DeviceBot, bot),
		labelStyle.Render(fmt.Sprintf("%s .. %s", points[0].Label, points[len(points)-1].Label)),
	}, "\n")
	return lipgloss.JoinHorizontal(lipgloss.Top, bc.View(), "  ", legend)
}

func legendLine(class model.DeviceClass, count int) string {
	swatch := deviceColors[class].Render(" ")
	return fmt.Sprintf("%s %-8s %6d", swatch, class, count)
}

func renderAnomalies(views []anomalyView) string {
	title := titleStyle.Render(fmt.Sprintf("Anomalies (%d)", len(views)))
	if len(views) == 0 {
		return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, helpStyle.Render("No anomalies detected")))
	}

	var blocks []string
	for _, v := range views {
		lines := []string{
			ruleStyle.Render(v.Rule) + " " + labelStyle.Render(v.ID),
			v.Reason,
			helpStyle.Render(v.Note),
		}
		for i, r := range v.RelatedLogs {
			if i == maxEvidenceLines {
				lines = append(lines, labelStyle.Render(fmt.Sprintf("  ... %d more", len(v.RelatedLogs)-i)))
				break
			}
			lines = append(lines, "  "+recordLine(r))
		}
		if len(v.Locations) > 0 {
			ips := make([]string, 0, len(v.Locations))
			for ip := range v.Locations {
				ips = append(ips, ip)
			}
			sort.Strings(ips)
			for _, ip := range ips {
				loc := v.Locations[ip]
				lines = append(lines, labelStyle.Render(fmt.Sprintf("  %s: %s, %s", ip, loc.City, loc.Country)))
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(blocks, "\n\n")))
}

func renderRecords(records []model.LogRecord) string {
	if len(records) == 0 {
		return helpStyle.Render("No records")
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		line := recordLine(r)
		if r.IsAnomaly {
			line = ruleStyle.Render("!") + " " + line + " " + helpStyle.Render(r.Note)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func recordLine(r model.LogRecord) string {
	return fmt.Sprintf("%s %-15s %3d %-6s %s %s",
		r.Time().UTC().Format(time.RFC3339), r.IP, r.Status, r.Request.Method,
		truncate(r.Request.Path, 60), labelStyle.Render(truncate(r.UserAgent, 40)))
}

func renderOverview(o storeOverview) string {
	tables := make([]string, 0, len(o.Tables))
	for name := range o.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	var counts []string
	for _, name := range tables {
		counts = append(counts, kv(name, fmt.Sprintf("%d", o.Tables[name])))
	}

	stats := []string{
		kv("Window", o.Window),
		kv("Requests", fmt.Sprintf("%d", o.Requests)),
		kv("Visitors", fmt.Sprintf("%d", o.Visitors)),
		kv("Bytes", formatBytes(o.Bytes)),
	}
	for _, p := range o.TopPaths {
		stats = append(stats, kv("Path", fmt.Sprintf("%s (%d)", p.Path, p.Count)))
	}
	ids := make([]string, 0, len(o.Evidence))
	for id := range o.Evidence {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		stats = append(stats, kv("Evidence", fmt.Sprintf("%s (%d)", id, o.Evidence[id])))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Schema"), o.Schema)),
		sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Tables"), strings.Join(counts, "\n"))),
		sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Window"), strings.Join(stats, "\n"))),
	)
}

func renderRows(rows queryRows) string {
	if len(rows) == 0 {
		return helpStyle.Render("(0 rows)")
	}
	var columns []string
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	widths := make([]int, len(columns))
	cells := make([][]string, len(rows))
	for i, col := range columns {
		widths[i] = len(col)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i, col := range columns {
			cell := fmt.Sprintf("%v", row[col])
			cells[r][i] = cell
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	for i, col := range columns {
		b.WriteString(titleStyle.Render(pad(col, widths[i])))
		b.WriteString("  ")
	}
	for _, row := range cells {
		b.WriteByte('\n')
		for i, cell := range row {
			b.WriteString(pad(cell, widths[i]))
			b.WriteString("  ")
		}
	}
	fmt.Fprintf(&b, "\n%s", helpStyle.Render(fmt.Sprintf("(%d rows)", len(rows))))
	return b.String()
}

func kv(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-10s", label)) + valueStyle.Render(value)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
