package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/skywave/skywave/internal/catalog"
	"github.com/skywave/skywave/internal/player"
	"github.com/skywave/skywave/internal/recognizer"
)

type catalogMsg struct {
	cat catalog.Catalog
	err error
}

type catalogRefreshMsg struct{}

type playerEventMsg player.Event

type recogStatusMsg recognizer.Status

type clearInfoMsg struct{}

type clearFlashMsg struct{}

type clearErrorMsg struct{}

func (m Model) loadCatalogCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		cat, err := m.catalog.Fetch(ctx)
		return catalogMsg{cat: cat, err: err}
	}
}

// scheduleCatalogRefreshCmd re-fetches the catalog shortly after the top of
// each hour, when the live channels change shows.
func (m Model) scheduleCatalogRefreshCmd() tea.Cmd {
	return tea.Tick(catalog.NextRefresh(time.Now()), func(time.Time) tea.Msg {
		return catalogRefreshMsg{}
	})
}

func (m Model) watchPlayerCmd() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.player.Events()
		if !ok {
			return nil
		}
		return playerEventMsg(ev)
	}
}

func (m Model) watchRecognizerCmd() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-m.recog.Updates()
		if !ok {
			return nil
		}
		return recogStatusMsg(st)
	}
}

type playFailedMsg struct {
	err error
}

func (m Model) playCmd(s catalog.Stream) tea.Cmd {
	return func() tea.Msg {
		err := m.player.Play(context.Background(), player.Stream{Name: s.Name, URL: s.StreamURL})
		if err != nil {
			return playFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) clearInfoCmd() tea.Cmd {
	return tea.Tick(infoTTL, func(time.Time) tea.Msg {
		return clearInfoMsg{}
	})
}

func (m Model) clearFlashCmd() tea.Cmd {
	return tea.Tick(flashTTL, func(time.Time) tea.Msg {
		return clearFlashMsg{}
	})
}

func (m Model) clearErrorCmd() tea.Cmd {
	return tea.Tick(errorTTL, func(time.Time) tea.Msg {
		return clearErrorMsg{}
	})
}

func (m Model) setError(err error) (Model, tea.Cmd) {
	m.errorMsg = err.Error()
	return m, m.clearErrorCmd()
}
