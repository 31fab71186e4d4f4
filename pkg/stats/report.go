package stats

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
)

// ReportInfo describes the crawl the report is about
type ReportInfo struct {
	City       string
	ProxyCount int
	FeedPath   string
}

// WriteReport renders snap as Markdown
func WriteReport(w io.Writer, info ReportInfo, snap Snapshot) error {
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Report")
	md.PlainText("")

	proxies := "disabled"
	if info.ProxyCount > 0 {
		proxies = strconv.Itoa(info.ProxyCount)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"City", info.City},
			{"Proxies", proxies},
			{"Feed", "`" + info.FeedPath + "`"},
			{"Elapsed", snap.Elapsed.Round(time.Millisecond).String()},
			{"Items", strconv.FormatInt(snap.ItemsScraped, 10)},
		},
	})
	md.PlainText("")

	md.H2("Requests")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Scheduled", strconv.FormatInt(snap.RequestsScheduled, 10)},
			{"Sent", strconv.FormatInt(snap.RequestsSent, 10)},
			{"Via proxy", strconv.FormatInt(snap.ProxyAssignments, 10)},
			{"Direct", strconv.FormatInt(snap.DirectDispatches, 10)},
			{"Duplicates dropped", strconv.FormatInt(snap.DupesFiltered, 10)},
			{"Proxy retries", strconv.FormatInt(snap.ProxyRetries, 10)},
			{"Retries exhausted", strconv.FormatInt(snap.RetriesExhausted, 10)},
			{"Transport retries", strconv.FormatInt(snap.TransportRetries, 10)},
			{"Transport failures", strconv.FormatInt(snap.TransportFailures, 10)},
			{"Callback errors", strconv.FormatInt(snap.CallbackErrors, 10)},
			{"Feed errors", strconv.FormatInt(snap.ItemErrors, 10)},
		},
	})
	md.PlainText("")

	md.H2("Responses")
	md.PlainText("")
	if len(snap.Statuses) == 0 {
		md.PlainText("No responses received.")
	} else {
		rows := make([][]string, 0, len(snap.Statuses))
		for _, sc := range snap.Statuses {
			rows = append(rows, []string{
				fmt.Sprintf("%d %s", sc.Status, http.StatusText(sc.Status)),
				strconv.FormatInt(sc.Count, 10),
			})
		}
		md.Table(markdown.TableSet{Header: []string{"Status", "Count"}, Rows: rows})
		md.PlainText("")
		md.PlainText("Average latency: " + snap.AvgLatency.Round(time.Millisecond).String())
	}

	return md.Build()
}

// SaveReport writes the report to path, creating parent directories
func SaveReport(path string, info ReportInfo, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := WriteReport(f, info, snap); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
