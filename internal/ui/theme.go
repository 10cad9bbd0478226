package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pbaille/grind/internal/economy"
)

const (
	IconSwords = "⚔️"
	IconDone   = "✅"
	IconTrophy = "🏆"
	IconFire   = "🔥"
	IconGift   = "🎁"
	IconLock   = "🔒"
	IconBolt   = "⚡"
	IconWarn   = "⚠️"
	IconError  = "🧨"
	IconLoop   = "🔁"
	IconScroll = "📜"
)

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("205") // magenta
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
	cGold    = lipgloss.Color("220") // gold
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Muted = lipgloss.NewStyle().Foreground(cMuted)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)
	Gold  = lipgloss.NewStyle().Bold(true).Foreground(cGold)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)

	BadgeGoal = lipgloss.NewStyle().Bold(true).Foreground(cGold).Render("DAILY GOAL REACHED")
)

func Heading(icon string, title string) string {
	icon = strings.TrimSpace(icon)
	if icon != "" {
		icon += " "
	}
	return Title.Render(icon + title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// ProgressBar renders frac (0..1) as a bar of width cells.
func ProgressBar(frac float64, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := int(frac * float64(width))
	filled = min(max(filled, 0), width)
	bar := Good.Render(strings.Repeat("█", filled)) + Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, frac*100)
}

// SlotStatus renders the claim status of a reward slot.
func SlotStatus(status economy.Status, missing int) string {
	switch status {
	case economy.StatusClaimed:
		return Muted.Render("claimed")
	case economy.StatusAffordable:
		return Good.Render("ready to claim")
	case economy.StatusShort:
		return Warn.Render(fmt.Sprintf("%d more points", missing))
	default:
		return Bad.Render("no points yet")
	}
}

// Error renders an error line for the CLI.
func Error(err error) string {
	return Bad.Render(IconError + " " + err.Error())
}
