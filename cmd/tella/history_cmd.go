// History listing for tella CLI
package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sonemaro/tella/internal/types"
	"github.com/sonemaro/tella/internal/ui"
)

// runHistory prints the last limit entries, or those matching search,
// followed by totals
func (a *App) runHistory(limit int, search string) error {
	settings, err := a.store.LoadOrDefault()
	if err != nil {
		return err
	}
	if !settings.History.Enabled {
		return errors.New("history is disabled; enable it with 'tella --settings'")
	}

	store, err := a.openHistory(settings.History)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	var entries []*types.HistoryEntry
	if search != "" {
		entries, err = store.Search(search, limit)
	} else {
		entries, err = store.List(limit, 0, "")
	}
	if err != nil {
		return err
	}

	renderer := a.newRenderer(settings)
	if len(entries) == 0 {
		if search != "" {
			renderer.PrintInfo(fmt.Sprintf("No history matches %q", search))
		} else {
			renderer.PrintInfo("No history yet")
		}
		return nil
	}

	for _, entry := range entries {
		renderer.PrintHistoryEntry(entry)
	}

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "%s %d total, %d executed, %d failed\n",
		ui.Bold("History:"), stats.Total, stats.Executed, stats.Failed)
	if line := formatCounts(stats.ByRisk); line != "" {
		fmt.Fprintf(a.stdout, "  By risk:  %s\n", line)
	}
	if line := formatCounts(stats.ByModel); line != "" {
		fmt.Fprintf(a.stdout, "  By model: %s\n", line)
	}
	return nil
}

// formatCounts renders a count map as "key=n" pairs in stable order
func formatCounts[K types.RiskLevel | string](counts map[K]int) string {
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%v=%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}
