package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/postx/internal/models"
)

var _ list.Item = accountItem{}

// accountItem wraps [models.Account] to implement [list.Item].
type accountItem struct {
	account *models.Account
}

func (i accountItem) FilterValue() string { return i.account.Display().Name }
func (i accountItem) Title() string       { return i.account.Display().Name }
func (i accountItem) Description() string {
	d := i.account.Display()
	desc := i.account.Platform.DisplayName()
	if d.Followers > 0 {
		desc = fmt.Sprintf("%s • %d followers", desc, d.Followers)
	}
	if d.Degraded {
		desc += " • profile unavailable"
	}
	return desc
}
