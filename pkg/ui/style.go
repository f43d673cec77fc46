// Package ui formats operator-facing output: banners, stage headers, step
// status lines, warnings and the completion box.
//
// Styling is stateless. Decorate maps a Style to fatih/color attributes on
// every call, and color output follows color.NoColor, which fatih/color
// disables on its own when stdout is not a terminal.
package ui

import (
	"strings"
	"unicode"

	fcolor "github.com/fatih/color"
)

// Style names a text style.
type Style int

// Styles.
const (
	StylePlain Style = iota
	StyleBold
	StyleDim
	StyleInfo
	StyleSuccess
	StyleWarning
	StyleError
	StyleFrame
	StyleLion
	StyleSerpent
	StyleGoat
	StyleNeutral
)

func attributes(style Style) []fcolor.Attribute {
	switch style {
	case StyleBold:
		return []fcolor.Attribute{fcolor.Bold}
	case StyleDim:
		return []fcolor.Attribute{fcolor.Faint}
	case StyleInfo:
		return []fcolor.Attribute{fcolor.FgCyan}
	case StyleSuccess:
		return []fcolor.Attribute{fcolor.FgGreen}
	case StyleWarning, StyleLion:
		return []fcolor.Attribute{fcolor.FgYellow}
	case StyleError, StyleFrame:
		return []fcolor.Attribute{fcolor.FgRed}
	case StyleSerpent:
		return []fcolor.Attribute{fcolor.FgGreen}
	case StyleGoat:
		return []fcolor.Attribute{fcolor.FgMagenta}
	case StyleNeutral:
		return []fcolor.Attribute{fcolor.FgWhite}
	default:
		return nil
	}
}

// Decorate returns text wrapped in the escape sequences of style. Plain text
// is returned unchanged.
func Decorate(style Style, text string) string {
	attrs := attributes(style)
	if len(attrs) == 0 {
		return text
	}
	return fcolor.New(attrs...).Sprint(text)
}

// Brand is the display identity of a pillar.
type Brand struct {
	Symbol string
	Name   string
	Style  Style
}

var brands = map[string]Brand{
	"gaming":    {Symbol: "🦁", Name: "Lion", Style: StyleLion},
	"developer": {Symbol: "🐍", Name: "Serpent", Style: StyleSerpent},
	"aesthetic": {Symbol: "🐐", Name: "Goat", Style: StyleGoat},
}

// BrandFor returns the brand of a pillar. Pillars without one get a wrench
// and their title-cased name.
func BrandFor(pillar string) Brand {
	if b, ok := brands[pillar]; ok {
		return b
	}
	return Brand{Symbol: "🔧", Name: title(pillar), Style: StyleNeutral}
}

// title upper-cases every letter that follows a non-letter and lower-cases
// the rest.
func title(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		letter := unicode.IsLetter(r)
		switch {
		case letter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case letter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = letter
	}
	return b.String()
}
