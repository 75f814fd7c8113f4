// SPDX-License-Identifier: AGPL-3.0-only
package chat

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/firoagni/ai-development-tutorials/internal/model"
)

// styles holds the lipgloss styles for one output writer. Colors are only
// emitted when the writer is a color-capable terminal.
type styles struct {
	prompt  lipgloss.Style
	label   lipgloss.Style
	answer   lipgloss.Style
	thinking lipgloss.Style
	code     lipgloss.Style
	usage    lipgloss.Style
	err      lipgloss.Style
	notice   lipgloss.Style
	divider  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		prompt:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		answer:   r.NewStyle(),
		thinking: r.NewStyle().Faint(true).Italic(true),
		code:     r.NewStyle().Foreground(lipgloss.Color("14")),
		usage:    r.NewStyle().Faint(true),
		err:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		notice:   r.NewStyle().Foreground(lipgloss.Color("11")),
		divider:  r.NewStyle().Faint(true),
	}
}

func (s styles) usageLine(u model.Usage) string {
	return s.usage.Render(fmt.Sprintf("Tokens used: input=%d output=%d total=%d",
		u.InputTokens, u.OutputTokens, u.TotalTokens))
}

func (s styles) rule(width int) string {
	return s.divider.Render(strings.Repeat("-", width))
}
