package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/call"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/media"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/utils"
)

// Controller is the part of a call session the screen drives.
// *call.Session satisfies it.
type Controller interface {
	Status() call.Status
	Updates() <-chan call.Status
	ToggleAudio()
	ToggleVideo()
	Retry() error
	End()
}

type keyMap struct {
	Audio key.Binding
	Video key.Binding
	Retry key.Binding
	Quit  key.Binding
	Help  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Audio, k.Video, k.Retry, k.Quit, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Audio, k.Video}, {k.Retry, k.Quit, k.Help}}
}

var callKeys = keyMap{
	Audio: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute/unmute")),
	Video: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "camera on/off")),
	Retry: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "end call")),
	Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
}

var (
	allowKey = key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "allow"))
	denyKey  = key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n", "deny"))
)

type consentRequest struct {
	constraints media.Constraints
	reply       chan bool
}

// ConsentPrompt turns media permission requests into a prompt on the call
// screen. Ask is a media.ConsentFunc.
type ConsentPrompt struct {
	requests chan consentRequest
}

func NewConsentPrompt() *ConsentPrompt {
	return &ConsentPrompt{requests: make(chan consentRequest)}
}

// Ask blocks until the user answers or ctx is done.
func (p *ConsentPrompt) Ask(ctx context.Context, c media.Constraints) (bool, error) {
	req := consentRequest{constraints: c, reply: make(chan bool, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-req.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type statusMsg call.Status

type sessionClosedMsg struct{}

type retryMsg struct{ err error }

type tickMsg time.Time

// CallModel is the bubbletea model for an active call.
type CallModel struct {
	session Controller
	consent *ConsentPrompt
	roomID  string
	local   protocol.Participant

	status  call.Status
	pending *consentRequest
	notice  string
	ending  bool
	closed  bool

	spinner spinner.Model
	help    help.Model
	keys    keyMap
}

// NewCallModel builds the call screen. consent may be nil when permission
// is granted without asking.
func NewCallModel(session Controller, consent *ConsentPrompt, roomID string, local protocol.Participant) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		session: session,
		consent: consent,
		roomID:  roomID,
		local:   local,
		status:  session.Status(),
		spinner: s,
		help:    help.New(),
		keys:    callKeys,
	}
}

// Status is the last snapshot the screen received.
func (m *CallModel) Status() call.Status { return m.status }

func (m *CallModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.waitForStatus(), tick()}
	if m.consent != nil {
		cmds = append(cmds, m.waitForConsent())
	}
	return tea.Batch(cmds...)
}

func (m *CallModel) waitForStatus() tea.Cmd {
	updates := m.session.Updates()
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return sessionClosedMsg{}
		}
		return statusMsg(st)
	}
}

func (m *CallModel) waitForConsent() tea.Cmd {
	requests := m.consent.requests
	return func() tea.Msg {
		return <-requests
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if !m.closed {
			return m, tick()
		}

	case statusMsg:
		m.status = call.Status(msg)
		if m.status.State != call.StateFailed {
			m.notice = ""
		}
		return m, m.waitForStatus()

	case sessionClosedMsg:
		m.closed = true
		m.status = m.session.Status()
		m.answerConsent(false)
		return m, tea.Quit

	case consentRequest:
		m.pending = &msg
		return m, m.waitForConsent()

	case retryMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
	}
	return m, nil
}

func (m *CallModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pending != nil {
		switch {
		case key.Matches(msg, allowKey):
			m.answerConsent(true)
		case key.Matches(msg, denyKey):
			m.answerConsent(false)
		case key.Matches(msg, m.keys.Quit):
			m.answerConsent(false)
			return m, m.end()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.end()
	case key.Matches(msg, m.keys.Audio):
		m.session.ToggleAudio()
	case key.Matches(msg, m.keys.Video):
		m.session.ToggleVideo()
	case key.Matches(msg, m.keys.Retry):
		session := m.session
		return m, func() tea.Msg { return retryMsg{err: session.Retry()} }
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// end tears the session down off the update loop. The screen quits once
// the session's updates close.
func (m *CallModel) end() tea.Cmd {
	if m.ending {
		return nil
	}
	m.ending = true
	session := m.session
	return func() tea.Msg {
		session.End()
		return nil
	}
}

func (m *CallModel) answerConsent(ok bool) {
	if m.pending == nil {
		return
	}
	m.pending.reply <- ok
	m.pending = nil
}

func (m *CallModel) View() string {
	if m.closed {
		return ""
	}

	var b strings.Builder
	header := fmt.Sprintf("%s Teleconsult  %s", IconCall, MutedStyle.Render("room "+m.roomID))
	b.WriteString("\n" + TitleStyle.Render(header) + "\n\n")

	b.WriteString(m.stateLine() + "\n")
	if m.status.State == call.StateFailed {
		if msg := m.status.Cause.Message(); msg != "" {
			b.WriteString(WarningStyle.Render(msg) + "\n")
		}
	}
	if m.notice != "" {
		b.WriteString(ErrorStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(m.participants().View() + "\n")

	if m.status.RemoteHungUp {
		b.WriteString(MutedStyle.Render(IconHangup+" The other participant ended the call.") + "\n")
	}

	if m.pending != nil {
		c := m.pending.constraints
		prompt := fmt.Sprintf("%s Allow camera and microphone? %s  %s",
			IconWarning, MutedStyle.Render(fmt.Sprintf("(%dx%d)", c.Width, c.Height)),
			MutedStyle.Render(m.help.ShortHelpView([]key.Binding{allowKey, denyKey})))
		b.WriteString("\n" + PromptBoxStyle.Render(prompt) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys) + "\n")
	return b.String()
}

func (m *CallModel) stateLine() string {
	st := m.status
	switch st.State {
	case call.StateIdle, call.StateAcquiringMedia:
		return fmt.Sprintf("%s Starting camera and microphone...", m.spinner.View())
	case call.StateJoiningRoom:
		return fmt.Sprintf("%s %s Joining room...", m.spinner.View(), IconConnect)
	case call.StateNegotiating:
		if st.Waiting() {
			return fmt.Sprintf("%s %s Waiting for other participant...", m.spinner.View(), IconWaiting)
		}
		return fmt.Sprintf("%s %s Connecting to %s...", m.spinner.View(), IconConnect, st.Remote.DisplayName)
	case call.StateConnected:
		return fmt.Sprintf("%s %s  %s %s", StatusStyle.Render("Connected"),
			MutedStyle.Render(st.Connection.String()), IconTime, utils.FormatTimeDuration(st.Duration()))
	case call.StateFailed:
		return ErrorStyle.Render(fmt.Sprintf("%s Call failed (%s)", IconError, st.Cause))
	default:
		return MutedStyle.Render(IconHangup + " Call ended")
	}
}

func (m *CallModel) participants() *ParticipantsTable {
	st := m.status
	audio, video := st.AudioEnabled, st.VideoEnabled
	rows := []ParticipantRow{{Label: "You", Participant: m.local, Audio: &audio, Video: &video}}
	if st.Remote != nil {
		row := ParticipantRow{Label: "Remote", Participant: *st.Remote}
		if rm := st.RemoteMedia; rm != nil {
			a, v := rm.AudioEnabled, rm.VideoEnabled
			row.Audio, row.Video = &a, &v
		}
		rows = append(rows, row)
	}
	return NewParticipantsTable(rows...)
}

// RunCallScreen runs the call screen until the session ends.
func RunCallScreen(session Controller, consent *ConsentPrompt, roomID string, local protocol.Participant) error {
	if _, err := tea.NewProgram(NewCallModel(session, consent, roomID, local)).Run(); err != nil {
		session.End()
		return err
	}
	return nil
}
