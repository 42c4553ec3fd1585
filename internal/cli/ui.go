package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	TitleStyle       = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	SuccessStyle     = lipgloss.NewStyle().Foreground(Success).Bold(true)
	WarningStyle     = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle       = lipgloss.NewStyle().Foreground(Error).Bold(true)
	MutedStyle       = lipgloss.NewStyle().Foreground(Muted)
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).Padding(0, 1)
	TableRowStyle    = lipgloss.NewStyle().Padding(0, 1)
	TableRowAltStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(Muted)
)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
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
		}).
		Render()
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Truncate(time.Second).String()
}

func participantTable(list []domain.Participant) string {
	if len(list) == 0 {
		return MutedStyle.Render("Nobody here")
	}
	rows := make([][]string, 0, len(list))
	for i, p := range list {
		role := "guest"
		if p.IsHost {
			role = "host"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), p.Name, string(p.ID), role, since(p.JoinedAt)})
	}
	return renderTable([]string{"#", "Name", "Identity", "Role", "Waiting/In for"}, rows)
}

func roomTable(rooms []core.RoomStatus) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No rooms")
	}
	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{
			string(r.ID),
			r.HostName,
			fmt.Sprintf("%d", r.ParticipantCount),
			fmt.Sprintf("%d", r.WaitingCount),
			r.ValidUntil.Local().Format(time.DateTime),
		})
	}
	return renderTable([]string{"Room", "Host", "In call", "Waiting", "Valid until"}, rows)
}

func statusView(st core.RoomStatus) string {
	state := SuccessStyle.Render("active")
	if !st.IsActive {
		state = ErrorStyle.Render("ended")
	}
	return renderTable([]string{"Field", "Value"}, [][]string{
		{"Room", string(st.ID)},
		{"Host", st.HostName},
		{"State", state},
		{"Participants", fmt.Sprintf("%d", st.ParticipantCount)},
		{"Waiting", fmt.Sprintf("%d", st.WaitingCount)},
		{"Valid until", st.ValidUntil.Local().Format(time.DateTime)},
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
