package common

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// PrintResult renders a command outcome with its detail lines.
func PrintResult(w io.Writer, ok bool, title string, details []string, err error) {
	status := okStyle.Render("PASS")
	if !ok {
		status = failStyle.Render("FAIL")
	}
	fmt.Fprintf(w, "%s %s\n", status, titleStyle.Render(title))
	for _, d := range details {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(d))
	}
	if err != nil {
		fmt.Fprintf(w, "  %s\n", failStyle.Render(err.Error()))
	}
}

func Title(s string) string { return titleStyle.Render(s) }

func Dim(s string) string { return dimStyle.Render(s) }
