// Package highlight implements HighlightRules: the colors.yaml-driven
// keyword highlighter applied to console output by the Output stage.
package highlight

import (
	"sort"
	"strings"

	"github.com/fatih/color"
)

// namedColors mirrors the basic ANSI color name set the original
// implementation validated against (rich's ANSI_COLOR_NAMES, trimmed to the
// eight standard foreground colors plus their bright variants).
var namedColors = map[string]*color.Color{
	"black":          color.New(color.FgBlack),
	"red":            color.New(color.FgRed),
	"green":          color.New(color.FgGreen),
	"yellow":         color.New(color.FgYellow),
	"blue":           color.New(color.FgBlue),
	"magenta":        color.New(color.FgMagenta),
	"cyan":           color.New(color.FgCyan),
	"white":          color.New(color.FgWhite),
	"bright_black":   color.New(color.FgHiBlack),
	"bright_red":     color.New(color.FgHiRed),
	"bright_green":   color.New(color.FgHiGreen),
	"bright_yellow":  color.New(color.FgHiYellow),
	"bright_blue":    color.New(color.FgHiBlue),
	"bright_magenta": color.New(color.FgHiMagenta),
	"bright_cyan":    color.New(color.FgHiCyan),
	"bright_white":   color.New(color.FgHiWhite),
}

// ValidColorName reports whether name resolves to a known ANSI color.
func ValidColorName(name string) bool {
	_, ok := namedColors[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func colorFor(name string) *color.Color {
	return namedColors[strings.ToLower(strings.TrimSpace(name))]
}

// span is an accepted, non-overlapping match of one phrase.
type span struct {
	start, end int
	color      string
}

// sortSpans sorts matches left to right so they can be applied in a single
// forward pass over the source text.
func sortSpans(spans []span) {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
}
