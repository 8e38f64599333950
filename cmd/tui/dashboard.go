// Package tui implements the live dashboard behind `objectdb-coordinator
// stats`: a terminal view of object-cache occupancy (total and per class),
// refreshed on an interval, for an operator watching a running coordinator process
// over the admin HTTP surface.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

// Snapshot is the subset of /debug/cache the dashboard renders.
type Snapshot struct {
	CacheSize   int            `json:"size"`
	CacheDetail map[string]int `json:"detail"`
}

// Run polls httpAddr's /debug/cache endpoint every interval and renders it
// until the user presses q or Ctrl-C.
func Run(httpAddr string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("tui: init: %w", err)
	}
	defer ui.Close()

	table := widgets.NewTable()
	table.Title = "objectdb-coordinator — cache detail"
	table.Rows = [][]string{{"class", "entries"}}
	table.SetRect(0, 0, 80, 20)

	client := &http.Client{Timeout: 2 * time.Second}
	refresh := func() {
		snap, err := fetch(client, httpAddr)
		rows := [][]string{{"class", "entries"}}
		if err != nil {
			rows = append(rows, []string{"error", err.Error()})
		} else {
			rows = append(rows, []string{"(total)", fmt.Sprintf("%d", snap.CacheSize)})
			for class, n := range snap.CacheDetail {
				if class == "" {
					class = "(no class)"
				}
				rows = append(rows, []string{class, fmt.Sprintf("%d", n)})
			}
		}
		table.Rows = rows
		ui.Render(table)
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			refresh()
		}
	}
}

func fetch(client *http.Client, httpAddr string) (*Snapshot, error) {
	host := httpAddr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	resp, err := client.Get("http://" + host + "/debug/cache")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
