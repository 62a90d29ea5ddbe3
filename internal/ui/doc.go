// Package ui implements an interactive terminal interface for a discovery crawl using bubbletea's Elm architecture.
//
// The TUI walks through three views:
//  1. [ConfirmView] : Review the seeds, size and filter before starting
//  2. [CrawlView] : Follow the crawl with a spinner, a progress bar and the latest progress messages
//  3. [ResultView] : Browse the collected tracks and open the created playlist
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the [tasks.DiscoveryEngine], so the crawl never blocks on rendering.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, o, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
