// Package ui implements an interactive upload screen using bubbletea's Elm architecture.
//
// The TUI walks through a short workflow:
//  1. [AccountListView] : Pick a connected account (skipped when one is given)
//  2. [ConfirmView] : Review the file, caption and privacy before uploading
//  3. [UploadView] : Watch chunk progress, publishing, and processing checks
//  4. [ResultView] : See the published video or a readable error
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the upload orchestrator, providing non-blocking status reporting.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
