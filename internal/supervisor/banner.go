package supervisor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"signalscribe/internal/systeminfo"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 2)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	bylineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	versionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	paramStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Width(14)
)

// printBanner identifies the application and version on startup.
func printBanner(version string) {
	body := titleStyle.Render("SignalScribe") + "\n" +
		bylineStyle.Render("by Signals Rising") + "\n" +
		versionStyle.Render("Version "+version)
	fmt.Println(bannerStyle.Render(body))
	fmt.Println()
}

// params is the single table summarizing the chosen configuration.
type params struct {
	Model        string
	Accelerators string
	Threads      int
	CSVPath      string
	LogPath      string
	WatchDir     string
}

func printParams(p params) {
	if p.Accelerators == "" {
		p.Accelerators = "none detected"
	}
	if p.LogPath == "" {
		p.LogPath = "disabled"
	}

	rows := []struct{ k, v string }{
		{"Model", p.Model},
		{"Accelerators", p.Accelerators},
		{"Threads", fmt.Sprintf("%d", p.Threads)},
		{"CSV path", p.CSVPath},
		{"Log path", p.LogPath},
		{"Watching", p.WatchDir},
	}
	if mem, err := systeminfo.TotalMemoryBytes(); err == nil {
		rows = append(rows, struct{ k, v string }{"System memory", humanize.Bytes(mem)})
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(paramStyle.Render(row.k))
		b.WriteString(" ")
		b.WriteString(row.v)
	}
	fmt.Println(b.String())
	fmt.Println()
}
