package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/call"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/protocol"
	"github.com/sanjayjallapuram/OnlineHealthCareSystem/internal/utils"
)

// ParticipantRow is one line of the participants table.
type ParticipantRow struct {
	Label string
	protocol.Participant
	Audio *bool
	Video *bool
}

// ParticipantsTable renders the local and remote participants using
// lipgloss/table.
type ParticipantsTable struct {
	rows []ParticipantRow
}

func NewParticipantsTable(rows ...ParticipantRow) *ParticipantsTable {
	return &ParticipantsTable{rows: rows}
}

// View renders the table as a string
func (t *ParticipantsTable) View() string {
	if len(t.rows) == 0 {
		return MutedStyle.Render("No participants")
	}

	var rows [][]string
	for _, r := range t.rows {
		rows = append(rows, []string{
			r.Label,
			roleIcon(r.Role) + " " + utils.Capitalize(string(r.Role)),
			utils.TruncateString(r.DisplayName, 24),
			utils.TruncateString(r.ID, 16),
			mediaFlag(r.Audio, IconMicOn, IconMicOff),
			mediaFlag(r.Video, IconCamOn, IconCamOff),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("", "Role", "Name", "ID", "Mic", "Camera").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func roleIcon(r protocol.Role) string {
	if r == protocol.RoleDoctor {
		return IconDoctor
	}
	return IconPatient
}

func mediaFlag(on *bool, yes, no string) string {
	switch {
	case on == nil:
		return "?"
	case *on:
		return yes
	default:
		return no
	}
}

// CallSummary is what is shown after the call screen exits.
type CallSummary struct {
	RoomID string
	Local  protocol.Participant
	Status call.Status
}

// CallSummaryView renders the end-of-call summary with go-pretty.
func CallSummaryView(s CallSummary) string {
	t := prettytable.NewWriter()
	t.SetTitle("%s Call Summary", IconCall)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})

	remote := "none"
	if r := s.Status.Remote; r != nil {
		remote = fmt.Sprintf("%s (%s)", r.DisplayName, utils.Capitalize(string(r.Role)))
	}

	outcome := utils.Capitalize(s.Status.State.String())
	if s.Status.Cause != call.CauseNone {
		outcome = fmt.Sprintf("%s after %s", outcome, s.Status.Cause)
	}
	if s.Status.RemoteHungUp {
		outcome += ", remote hung up"
	}

	t.AppendRows([]prettytable.Row{
		{"Room", s.RoomID},
		{"You", fmt.Sprintf("%s (%s)", s.Local.DisplayName, utils.Capitalize(string(s.Local.Role)))},
		{"Remote", remote},
		{"Outcome", outcome},
		{"Attempts", s.Status.Attempt},
		{"Connected for", utils.FormatTimeDuration(s.Status.Duration())},
	})
	if s.Status.RemoteDevice != "" {
		t.AppendRow(prettytable.Row{"Remote device", s.Status.RemoteDevice})
	}

	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
	})
	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}

// RoomInfo shows a freshly minted room and how each side joins it.
type RoomInfo struct {
	RoomID string
}

func NewRoomInfo(roomID string) *RoomInfo {
	return &RoomInfo{RoomID: roomID}
}

func (r *RoomInfo) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Room Created!\n\n", IconSuccess)
	fmt.Fprintf(&b, "%s Room ID:  %s\n\n", IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID))
	fmt.Fprintf(&b, "%s Doctor:   %s\n", IconDoctor, MutedStyle.Render(r.command(protocol.RoleDoctor)))
	fmt.Fprintf(&b, "%s Patient:  %s", IconPatient, MutedStyle.Render(r.command(protocol.RolePatient)))
	return SuccessBoxStyle.Render(b.String())
}

func (r *RoomInfo) command(role protocol.Role) string {
	return fmt.Sprintf("teleconsult call %s --role %s --user-id <id>", r.RoomID, role)
}

func RenderRoomInfo(roomID string) {
	fmt.Println(NewRoomInfo(roomID).View())
}
