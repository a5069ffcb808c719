package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
	"github.com/desertthunder/postx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	AccountListView ViewState = iota
	ConfirmView
	UploadView
	ResultView
)

// UploadFunc runs an upload to account, sending updates on progress until it returns.
type UploadFunc func(ctx context.Context, account *models.Account, progress chan<- tasks.ProgressUpdate) (*tasks.UploadResult, error)

// Options configure a [Model].
type Options struct {
	Accounts []*models.Account // Accounts to choose from
	Selected *models.Account   // Skips the account list when set
	Video    tasks.VideoFile
	Caption  string
	Privacy  string
	Upload   UploadFunc
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	view   ViewState
	opts   Options

	width       int
	height      int
	accountList list.Model
	selected    *models.Account
	bar         progress.Model
	spinner     spinner.Model

	progressChan chan tasks.ProgressUpdate
	doneChan     chan uploadCompleteMsg
	progress     tasks.ProgressUpdate
	result       *tasks.UploadResult
	err          error

	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	ctx, cancel := context.WithCancel(ctx)

	items := make([]list.Item, len(opts.Accounts))
	for i, a := range opts.Accounts {
		items[i] = accountItem{account: a}
	}
	accountList := list.New(items, list.NewDefaultDelegate(), 0, 0)
	accountList.Title = "Connected Accounts"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.title.UnsetMarginBottom()

	m := &Model{
		ctx:         ctx,
		cancel:      cancel,
		view:        AccountListView,
		opts:        opts,
		accountList: accountList,
		bar:         progress.New(progress.WithGradient("#25F4EE", "#FE2C55"), progress.WithWidth(50)),
		spinner:     sp,
		help:        help.New(),
		keys:        newKeyMap(),
	}

	if opts.Selected != nil {
		m.selected = opts.Selected
		m.view = ConfirmView
	}
	return m
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Result returns the upload outcome once the program exits.
func (m *Model) Result() (*tasks.UploadResult, error) {
	return m.result, m.err
}

// ViewState returns the current view.
func (m *Model) ViewState() ViewState {
	return m.view
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.accountList.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = max(20, min(msg.Width-8, 60))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case AccountListView:
			return m.handleAccountListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case UploadView:
			return m.handleUploadKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case uploadCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		m.progressChan = nil
		return m, nil
	}

	if m.view == AccountListView {
		var cmd tea.Cmd
		m.accountList, cmd = m.accountList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case AccountListView:
		return m.renderAccountList()
	case ConfirmView:
		return m.renderConfirm()
	case UploadView:
		return m.renderUpload()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleAccountListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.accountList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.accountList, cmd = m.accountList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.accountList.SelectedItem().(accountItem); ok {
			m.selected = item.account
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.accountList, cmd = m.accountList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = UploadView
		return m, m.startUpload()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		if m.opts.Selected != nil {
			m.cancel()
			return m, tea.Quit
		}
		m.view = AccountListView
		return m, nil
	case key.Matches(msg, m.keys.quit):
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

// handleUploadKeys cancels the running upload on quit; the result view shows the cancellation.
func (m *Model) handleUploadKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) || key.Matches(msg, m.keys.enter) {
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) startUpload() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.doneChan = make(chan uploadCompleteMsg, 1)

	progressChan, doneChan, account := m.progressChan, m.doneChan, m.selected
	go func() {
		result, err := m.opts.Upload(m.ctx, account, progressChan)
		doneChan <- uploadCompleteMsg{result: result, err: err}
		close(progressChan)
	}()

	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, doneChan := m.progressChan, m.doneChan
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			return <-doneChan
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderAccountList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.accountList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) videoName() string {
	if m.opts.Video.Name == "" {
		return "video"
	}
	return filepath.Base(m.opts.Video.Name)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Upload %s to %s?", m.videoName(), m.selected.Display().Name))

	var b strings.Builder
	row := func(label, value string) {
		if value != "" {
			b.WriteString(styles.label.Render(label) + value + "\n")
		}
	}
	row("Platform", m.selected.Platform.DisplayName())
	row("File", m.opts.Video.Name)
	row("Size", formatBytes(m.opts.Video.Size))
	if m.opts.Video.Duration > 0 {
		row("Duration", m.opts.Video.Duration.String())
	}
	row("Caption", m.opts.Caption)
	row("Privacy", m.opts.Privacy)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderUpload() string {
	title := styles.title.Render(fmt.Sprintf("Uploading %s to %s", m.videoName(), m.selected.Platform.DisplayName()))

	var phase string
	switch m.progress.Phase {
	case tasks.PhaseUpload:
		phase = fmt.Sprintf("Uploading chunks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.PhasePublish:
		phase = "Publishing..."
	case tasks.PhaseProcessing:
		phase = fmt.Sprintf("Processing (check %d/%d)", m.progress.Step, m.progress.Total)
	case tasks.PhaseInitialize:
		phase = "Opening upload session..."
	default:
		phase = "Preparing..."
	}

	bar := m.bar.ViewAs(float64(m.progress.Percent) / 100)
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})

	return fmt.Sprintf("%s\n\n%s %s\n\n%s\n%s\n\n%s", title, m.spinner.View(), phase, bar, styles.help.Render(m.progress.Message), helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s\n%s\n\n%s",
			styles.err.Render("✗ Upload failed"),
			shared.UserMessage(m.err),
			styles.help.Render(m.err.Error()),
			helpView,
		)
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress q to quit")
	}

	info := fmt.Sprintf("\nPublish ID: %s\nVideo ID: %s\nChunks: %d", m.result.PublishID, m.result.VideoID, m.result.Chunks)
	if m.result.ShareURL != "" {
		info += "\nURL: " + m.result.ShareURL
	}
	return fmt.Sprintf("%s\n%s\n\n%s", styles.ok.Render("✓ Upload Complete!"), info, helpView)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
