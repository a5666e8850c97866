package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	BulletStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingRight(1)
	TextStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	DimTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	SpinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	StatusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).PaddingLeft(1)
	PausedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

const defaultFrameColor = "#FFFFFF"

// namedColors covers the color names the packer offers.
var namedColors = map[string]string{
	"white":      "#FFFFFF",
	"black":      "#000000",
	"red":        "#FF0000",
	"lime":       "#00FF00",
	"green":      "#008000",
	"blue":       "#0000FF",
	"yellow":     "#FFFF00",
	"cyan":       "#00FFFF",
	"aqua":       "#00FFFF",
	"magenta":    "#FF00FF",
	"fuchsia":    "#FF00FF",
	"orange":     "#FFA500",
	"gold":       "#FFD700",
	"purple":     "#800080",
	"pink":       "#FFC0CB",
	"hotpink":    "#FF69B4",
	"gray":       "#808080",
	"grey":       "#808080",
	"silver":     "#C0C0C0",
	"lightgreen": "#90EE90",
	"dodgerblue": "#1E90FF",
	"skyblue":    "#87CEEB",
}

// frameColor maps a container color tag to a terminal color. Tags are color
// names or #RGB, #RRGGBB and #AARRGGBB hex values; anything else is white.
func frameColor(tag string) lipgloss.Color {
	tag = strings.TrimSpace(tag)
	if hex, ok := namedColors[strings.ToLower(tag)]; ok {
		return lipgloss.Color(hex)
	}
	if !strings.HasPrefix(tag, "#") || !isHex(tag[1:]) {
		return lipgloss.Color(defaultFrameColor)
	}

	digits := strings.ToUpper(tag[1:])
	switch len(digits) {
	case 3:
		return lipgloss.Color("#" + string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]}))
	case 6:
		return lipgloss.Color("#" + digits)
	case 8:
		// Alpha first; terminals have no use for it.
		return lipgloss.Color("#" + digits[2:])
	}
	return lipgloss.Color(defaultFrameColor)
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return s != ""
}
