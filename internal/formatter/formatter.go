// package formatter renders accounts and posts as tables, CSV, JSON, or Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/postx/internal/models"
	"github.com/desertthunder/postx/internal/shared"
)

// Format is an output format for listings.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formats lists the accepted --format values.
var Formats = []Format{FormatTable, FormatCSV, FormatJSON, FormatMarkdown}

// ParseFormat accepts a format name, defaulting to a table for the empty string.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case "md":
		return FormatMarkdown, nil
	case FormatTable, FormatCSV, FormatJSON, FormatMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// AccountView is the exported shape of an account. Tokens are never included.
type AccountView struct {
	ID                string    `json:"id"`
	Platform          string    `json:"platform"`
	Name              string    `json:"name"`
	PlatformAccountID string    `json:"platform_account_id"`
	Followers         int64     `json:"followers"`
	Scope             string    `json:"scope,omitempty"`
	TokenExpiry       time.Time `json:"token_expiry,omitzero"`
	Degraded          bool      `json:"degraded,omitempty"`
}

// NewAccountView converts an account to its exported shape.
func NewAccountView(a *models.Account) AccountView {
	display := a.Display()
	return AccountView{
		ID:                a.ID,
		Platform:          a.Platform.DisplayName(),
		Name:              display.Name,
		PlatformAccountID: a.PlatformAccountID,
		Followers:         display.Followers,
		Scope:             a.Scope,
		TokenExpiry:       a.TokenExpiry,
		Degraded:          display.Degraded,
	}
}

func (v AccountView) record() []string {
	return []string{v.ID, v.Platform, v.Name, v.PlatformAccountID, strconv.FormatInt(v.Followers, 10), formatTime(v.TokenExpiry)}
}

var accountHeaders = []string{"ID", "Platform", "Name", "Platform Account", "Followers", "Token Expiry"}

// PostView is the exported shape of a post and its schedule.
type PostView struct {
	ID        string    `json:"id"`
	Sequence  int       `json:"sequence"`
	AccountID string    `json:"account_id"`
	Video     string    `json:"video"`
	Caption   string    `json:"caption,omitempty"`
	Privacy   string    `json:"privacy,omitempty"`
	Status    string    `json:"status"`
	RunAt     time.Time `json:"run_at,omitzero"`
	VideoID   string    `json:"video_id,omitempty"`
	ShareURL  string    `json:"share_url,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewPostView converts a post to its exported shape. job may be nil.
func NewPostView(p *models.Post, job *models.SchedulerJob) PostView {
	v := PostView{
		ID:        p.ID,
		Sequence:  p.Sequence,
		AccountID: p.AccountID,
		Video:     p.VideoPath,
		Caption:   p.Caption,
		Privacy:   p.PrivacyLevel,
		Status:    string(p.Status),
		VideoID:   p.VideoID,
		ShareURL:  p.ShareURL,
		Error:     p.ErrorMessage,
	}
	if job != nil {
		v.RunAt = job.RunAt
	}
	return v
}

func (v PostView) record() []string {
	return []string{strconv.Itoa(v.Sequence), v.ID, v.Status, formatTime(v.RunAt), v.Video, truncate(v.Caption, 40), v.ShareURL}
}

var postHeaders = []string{"#", "ID", "Status", "Run At", "Video", "Caption", "Share URL"}

// WriteAccounts writes accounts to w in format.
func WriteAccounts(w io.Writer, accounts []*models.Account, format Format) error {
	views := make([]AccountView, len(accounts))
	records := make([][]string, len(accounts))
	for i, a := range accounts {
		views[i] = NewAccountView(a)
		records[i] = views[i].record()
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, views)
	case FormatCSV:
		return writeCSV(w, accountHeaders, records)
	case FormatMarkdown:
		return writeMarkdown(w, "Accounts", accountHeaders, records)
	default:
		return writeTable(w, accountHeaders, records)
	}
}

// WritePosts writes posts to w in format. jobs maps post ids to their scheduler job.
func WritePosts(w io.Writer, posts []*models.Post, jobs map[string]*models.SchedulerJob, format Format) error {
	views := make([]PostView, len(posts))
	records := make([][]string, len(posts))
	for i, p := range posts {
		views[i] = NewPostView(p, jobs[p.ID])
		records[i] = views[i].record()
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, views)
	case FormatCSV:
		return writeCSV(w, postHeaders, records)
	case FormatMarkdown:
		return writeMarkdown(w, "Posts", postHeaders, records)
	default:
		return writeTable(w, postHeaders, records)
	}
}

func writeJSON(w io.Writer, data any) error {
	b, err := shared.MarshalJSON(data, true)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func writeCSV(w io.Writer, headers []string, records [][]string) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeMarkdown(w io.Writer, title string, headers []string, records [][]string) error {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Total**: %d\n\n", len(records)))

	buf.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	buf.WriteString("|" + strings.Repeat(" --- |", len(headers)) + "\n")
	for _, record := range records {
		cells := make([]string, len(record))
		for i, cell := range record {
			cells[i] = strings.ReplaceAll(cell, "|", `\|`)
		}
		buf.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeTable(w io.Writer, headers []string, records [][]string) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(records...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w, t.String())
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
