package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"alkoscraper/pkg/stats"
)

// RenderSummary renders the end-of-crawl panel
func RenderSummary(info stats.ReportInfo, snap stats.Snapshot) string {
	proxies := "disabled"
	if info.ProxyCount > 0 {
		proxies = fmt.Sprintf("%d", info.ProxyCount)
	}

	rows := [][2]string{
		{"City", info.City},
		{"Proxies", proxies},
		{"Elapsed", snap.Elapsed.Round(time.Millisecond).String()},
		{"Requests", fmt.Sprintf("%d sent, %d scheduled", snap.RequestsSent, snap.RequestsScheduled)},
		{"Proxy retries", fmt.Sprintf("%d (%d exhausted)", snap.ProxyRetries, snap.RetriesExhausted)},
		{"Transport", fmt.Sprintf("%d retries, %d failures", snap.TransportRetries, snap.TransportFailures)},
		{"Duplicates", fmt.Sprintf("%d", snap.DupesFiltered)},
		{"Items", fmt.Sprintf("%d", snap.ItemsScraped)},
		{"Feed", info.FeedPath},
	}

	width := 0
	for _, r := range rows {
		if len([]rune(r[0])) > width {
			width = len([]rune(r[0]))
		}
	}

	lines := []string{titleStyle.Render("CRAWL COMPLETE"), ""}
	for _, r := range rows {
		label := labelStyle.Width(width + 2).Render(r[0] + ":")
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, label, valueStyle.Render(r[1])))
	}

	if len(snap.Statuses) > 0 {
		var parts []string
		for _, sc := range snap.Statuses {
			parts = append(parts, fmt.Sprintf("%d×%d", sc.Status, sc.Count))
		}
		lines = append(lines, "", dimStyle.Render("status codes: "+strings.Join(parts, "  ")))
	}

	return panelStyle.Render(strings.Join(lines, "\n"))
}

// PrintSummary writes RenderSummary unless quiet mode is on
func PrintSummary(info stats.ReportInfo, snap stats.Snapshot) {
	write(false, RenderSummary(info, snap))
}
