package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
	"github.com/skywave/skywave/internal/catalog"
	"github.com/skywave/skywave/internal/config"
	"github.com/skywave/skywave/internal/history"
	"github.com/skywave/skywave/internal/player"
	"github.com/skywave/skywave/internal/recognizer"
	"github.com/skywave/skywave/internal/state"
	"github.com/skywave/skywave/internal/ui"
)

// Player is the playback surface the UI drives.
type Player interface {
	Play(ctx context.Context, s player.Stream) error
	Stop()
	Playing() bool
	Current() player.Stream
	SetVolume(v int)
	Volume() int
	Events() <-chan player.Event
}

// Recognizer is the recognition loop surface. Nil when recognition is
// disabled in config.
type Recognizer interface {
	Status() recognizer.Status
	Updates() <-chan recognizer.Status
	TriggerNow()
	SampleDuration() time.Duration
	SetSampleDuration(d time.Duration)
}

// History provides read access to the identified-track log.
type History interface {
	Entries() []history.Entry
	Len() int
}

// CatalogFetcher loads the station and mixtape catalog.
type CatalogFetcher interface {
	Fetch(ctx context.Context) (catalog.Catalog, error)
}

// SessionSaver persists UI state across restarts. Nil disables persistence.
type SessionSaver interface {
	Save(ctx context.Context, s state.Session) error
}

// Options bundles everything the UI model depends on.
type Options struct {
	Config     *config.Config
	Player     Player
	Recognizer Recognizer
	History    History
	Catalog    CatalogFetcher
	Sessions   SessionSaver
	Session    state.Session
}

const (
	infoTTL  = 12 * time.Second
	flashTTL = 2 * time.Second
	errorTTL = 3 * time.Second
)

type Model struct {
	cfg      *config.Config
	player   Player
	recog    Recognizer
	history  History
	catalog  CatalogFetcher
	sessions SessionSaver
	styles   ui.Styles

	cat         catalog.Catalog
	loaded      bool
	selection   int
	filtering   bool
	filterQ     string
	nowPlaying  player.Stream
	status      string
	errorMsg    string
	info        string
	volumeFlash bool
	sampleFlash bool
	recogStatus recognizer.Status
	histScroll  int
	showHelp    bool
	width       int
	height      int

	restoreName string
}

func New(opts Options) Model {
	return Model{
		cfg:         opts.Config,
		player:      opts.Player,
		recog:       opts.Recognizer,
		history:     opts.History,
		catalog:     opts.Catalog,
		sessions:    opts.Sessions,
		styles:      ui.DefaultStyles(opts.Config.UI.NoColor),
		status:      "Loading stations…",
		histScroll:  opts.Session.HistoryScroll,
		restoreName: opts.Session.StreamName,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadCatalogCmd(), m.scheduleCatalogRefreshCmd(), m.watchPlayerCmd()}
	if m.recog != nil {
		cmds = append(cmds, m.watchRecognizerCmd())
	}
	return tea.Batch(cmds...)
}

// visible returns the streams currently shown in the list. With an active
// filter the list is fuzzy-matched against stream names.
func (m Model) visible() []catalog.Stream {
	all := make([]catalog.Stream, 0, m.cat.Len())
	for i := 0; i < m.cat.Len(); i++ {
		if s, ok := m.cat.At(i); ok {
			all = append(all, s)
		}
	}
	if m.filterQ == "" {
		return all
	}
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name
	}
	matches := fuzzy.Find(m.filterQ, names)
	out := make([]catalog.Stream, 0, len(matches))
	for _, match := range matches {
		out = append(out, all[match.Index])
	}
	return out
}

func (m Model) selected() (catalog.Stream, bool) {
	vis := m.visible()
	if len(vis) == 0 {
		return catalog.Stream{}, false
	}
	return vis[clamp(m.selection, 0, len(vis)-1)], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case catalogMsg:
		if msg.err != nil {
			// Keep the previous catalog if a refresh fails.
			if !m.loaded {
				m.status = "Catalog unavailable"
			}
			return m.setError(msg.err)
		}
		m.cat = msg.cat
		m.loaded = true
		m.status = fmt.Sprintf("%d stations, %d mixtapes", len(m.cat.Channels), len(m.cat.Mixtapes))
		if m.restoreName != "" {
			for i, s := range m.visible() {
				if s.Name == m.restoreName {
					m.selection = i
					break
				}
			}
			m.restoreName = ""
		}
		return m, nil
	case catalogRefreshMsg:
		return m, tea.Batch(m.loadCatalogCmd(), m.scheduleCatalogRefreshCmd())
	case playerEventMsg:
		return m.handlePlayerEvent(player.Event(msg))
	case playFailedMsg:
		m.status = "Playback failed"
		return m.setError(msg.err)
	case recogStatusMsg:
		return m.handleRecogStatus(recognizer.Status(msg))
	case clearInfoMsg:
		m.info = ""
		return m, nil
	case clearFlashMsg:
		m.volumeFlash = false
		m.sampleFlash = false
		return m, nil
	case clearErrorMsg:
		m.errorMsg = ""
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "esc":
			m.filtering = false
			m.filterQ = ""
			m.selection = 0
			return m, nil
		case "enter":
			m.filtering = false
			return m, nil
		case "backspace":
			if len(m.filterQ) > 0 {
				m.filterQ = m.filterQ[:len(m.filterQ)-1]
				m.selection = 0
			}
			return m, nil
		case "up", "down":
			// fall through to list navigation below
		case "ctrl+c":
			return m.quit()
		default:
			if len(msg.Runes) > 0 {
				m.filterQ += string(msg.Runes)
				m.selection = 0
			}
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m.quit()
	case "?":
		m.showHelp = !m.showHelp
		return m, nil
	case "up":
		if m.selection > 0 {
			m.selection--
		}
		return m, nil
	case "down":
		if m.selection < len(m.visible())-1 {
			m.selection++
		}
		return m, nil
	case "enter":
		if s, ok := m.selected(); ok {
			m.status = "Tuning in to " + s.Name + "…"
			return m, m.playCmd(s)
		}
		return m, nil
	case " ":
		m.player.Stop()
		m.nowPlaying = player.Stream{}
		m.status = "Stopped"
		return m, nil
	case "<":
		return m.adjustVolume(-m.cfg.Player.VolumeStep)
	case ">":
		return m.adjustVolume(m.cfg.Player.VolumeStep)
	case "-":
		return m.adjustSampleDuration(-time.Second)
	case "=", "+":
		return m.adjustSampleDuration(time.Second)
	case "r":
		if m.recog != nil && m.player.Playing() {
			m.recog.TriggerNow()
			m.status = "Recognizing…"
		}
		return m, nil
	case "/":
		if m.cat.Len() > 0 {
			m.filtering = true
			m.filterQ = ""
			m.selection = 0
		}
		return m, nil
	case "j":
		if m.histScroll > 0 {
			m.histScroll--
		}
		return m, nil
	case "k":
		if m.histScroll < maxScroll(m.history.Len(), m.historyRows()) {
			m.histScroll++
		}
		return m, nil
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.sessions.Save(ctx, state.Session{
			StreamName:    m.nowPlaying.Name,
			StreamURL:     m.nowPlaying.URL,
			Volume:        m.player.Volume(),
			HistoryScroll: m.histScroll,
		})
	}
	return m, tea.Quit
}

func (m Model) adjustVolume(delta int) (tea.Model, tea.Cmd) {
	v := clamp(m.player.Volume()+delta, 0, 100)
	m.player.SetVolume(v)
	m.volumeFlash = true
	return m, m.clearFlashCmd()
}

// adjustSampleDuration tunes the recognition window at runtime, bounded by
// the shortest usable window below and the player's tap capacity above.
func (m Model) adjustSampleDuration(delta time.Duration) (tea.Model, tea.Cmd) {
	if m.recog == nil {
		return m, nil
	}
	max := time.Duration(m.cfg.Player.BufferSeconds) * time.Second
	d := m.recog.SampleDuration() + delta
	if d < recognizer.MinSampleDuration {
		d = recognizer.MinSampleDuration
	}
	if d > max {
		d = max
	}
	m.recog.SetSampleDuration(d)
	m.sampleFlash = true
	return m, m.clearFlashCmd()
}

func (m Model) handlePlayerEvent(ev player.Event) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch ev.Kind {
	case player.EventStarted:
		m.nowPlaying = ev.Stream
		m.status = "Playing " + ev.Stream.Name
	case player.EventStopped:
		m.status = "Stopped"
	case player.EventInterrupted:
		m.status = fmt.Sprintf("Stream interrupted, reconnecting (attempt %d)…", ev.Attempt)
	case player.EventReconnected:
		m.status = "Playing " + ev.Stream.Name
	case player.EventFailed:
		m.nowPlaying = player.Stream{}
		m.status = "Playback failed"
		if ev.Err != nil {
			m.errorMsg = ev.Err.Error()
			cmd = m.clearErrorCmd()
		}
	}
	return m, tea.Batch(cmd, m.watchPlayerCmd())
}

func (m Model) handleRecogStatus(st recognizer.Status) (tea.Model, tea.Cmd) {
	m.recogStatus = st
	var cmd tea.Cmd
	switch st.Outcome {
	case recognizer.OutcomeMatch:
		m.info = fmt.Sprintf("♪ %s — %s", st.Current.Artist, st.Current.Title)
		m.histScroll = 0
		cmd = m.clearInfoCmd()
	case recognizer.OutcomeRepeat:
		m.info = fmt.Sprintf("♪ %s — %s (still playing)", st.Current.Artist, st.Current.Title)
		cmd = m.clearInfoCmd()
	case recognizer.OutcomeNoMatch:
		m.info = "No match"
		cmd = m.clearInfoCmd()
	}
	// A match with an error means the track was identified but not logged;
	// a failure outcome carries the recognition error itself.
	var errCmd tea.Cmd
	if st.Err != nil {
		m.errorMsg = st.Err.Error()
		errCmd = m.clearErrorCmd()
	}
	return m, tea.Batch(cmd, errCmd, m.watchRecognizerCmd())
}

func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}
	title := m.styles.Title.Render("skywave")
	var sections []string
	sections = append(sections, title, m.renderList(), m.renderNowPlaying(), m.renderHistory())

	status := m.styles.Controls.Render(m.status)
	if m.errorMsg != "" {
		status = m.styles.Error.Render(m.errorMsg)
	}
	sections = append(sections, status, m.renderControls())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderList() string {
	var b strings.Builder
	if m.filtering || m.filterQ != "" {
		b.WriteString(m.styles.Info.Render("/"+m.filterQ) + "\n")
	}
	vis := m.visible()
	if len(vis) == 0 {
		if m.loaded {
			b.WriteString(m.styles.Description.Render("No streams match") + "\n")
		} else {
			b.WriteString(m.styles.Description.Render("Loading…") + "\n")
		}
		return b.String()
	}
	page := m.cfg.UI.PageSize
	if page <= 0 {
		page = len(vis)
	}
	sel := clamp(m.selection, 0, len(vis)-1)
	start := 0
	if sel >= page {
		start = sel - page + 1
	}
	end := start + page
	if end > len(vis) {
		end = len(vis)
	}
	for i := start; i < end; i++ {
		s := vis[i]
		if i == sel {
			b.WriteString(m.styles.Selected.Render("▸ ") + m.styles.Selected.Render(s.Name))
			if s.Subtitle != "" {
				b.WriteString("  " + m.styles.Description.Render(s.Subtitle))
			}
		} else {
			b.WriteString("  " + m.styles.Item.Render(s.Name))
			if s.Subtitle != "" {
				b.WriteString("  " + m.styles.Description.Render(s.Subtitle))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderNowPlaying() string {
	var b strings.Builder
	if m.nowPlaying.Name == "" {
		b.WriteString(m.styles.Description.Render("Nothing playing"))
	} else {
		b.WriteString(m.styles.Playing.Render("▶ " + m.nowPlaying.Name))
		if m.recog != nil && m.recogStatus.State != recognizer.StateIdle {
			b.WriteString("  " + m.styles.Description.Render(m.recogStatus.State.String()))
		}
	}
	if m.volumeFlash {
		b.WriteString("  " + m.styles.Info.Render(fmt.Sprintf("vol %d%%", m.player.Volume())))
	}
	if m.sampleFlash && m.recog != nil {
		b.WriteString("  " + m.styles.Info.Render(fmt.Sprintf("sample %ds", int(m.recog.SampleDuration().Seconds()))))
	}
	if m.info != "" {
		b.WriteString("\n" + m.styles.Info.Render(m.info))
	}
	return b.String()
}

func (m Model) renderHistory() string {
	entries := m.history.Entries()
	if len(entries) == 0 {
		return m.styles.Description.Render("No tracks identified yet")
	}
	rows := m.historyRows()
	// histScroll counts rows back from the newest entry.
	end := len(entries) - m.histScroll
	if end < 1 {
		end = 1
	}
	start := end - rows
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("History") + "\n")
	for i := end - 1; i >= start; i-- {
		e := entries[i]
		b.WriteString(m.styles.Description.Render(e.Time.Format("15:04")) + " ")
		b.WriteString(m.styles.History.Render(e.Artist+" — "+e.Title) + "\n")
	}
	return b.String()
}

func (m Model) renderControls() string {
	return m.styles.Controls.Render("↑/↓ select · enter play · space stop · </> volume · r recognize · =/- sample · / filter · j/k history · ? help · q quit")
}

func (m Model) renderHelp() string {
	lines := []string{
		m.styles.Title.Render("skywave — keys"),
		"",
		"  ↑/↓        select stream",
		"  enter      play selected stream",
		"  space      stop playback",
		"  < / >      volume down / up",
		"  r          recognize now",
		"  = / -      recognition sample window longer / shorter",
		"  /          filter streams (esc clears)",
		"  j / k      scroll history",
		"  ?          toggle this help",
		"  q          quit",
	}
	return strings.Join(lines, "\n")
}

func (m Model) historyRows() int {
	if m.height > 16 {
		return m.height - 12
	}
	return 5
}

func maxScroll(total, rows int) int {
	if total <= rows {
		return 0
	}
	return total - rows
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
