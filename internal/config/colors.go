package config

import (
	"fmt"

	"github.com/derailed/tcell/v2"
)

// Color represents a color in the application
type Color string

const (
	// DefaultColor represents a default color
	DefaultColor Color = "default"

	// TransparentColor represents the terminal bg color
	TransparentColor Color = "-"
)

// NewColor returns a new color
func NewColor(c string) Color {
	return Color(c)
}

// String returns color as a tview color tag value
func (c Color) String() string {
	if c.isHex() {
		return string(c)
	}
	if c == DefaultColor || c == TransparentColor || c == "" {
		return "-"
	}
	col := c.Color().TrueColor().Hex()
	if col < 0 {
		return "-"
	}
	return fmt.Sprintf("#%06x", col)
}

func (c Color) isHex() bool {
	return len(c) == 7 && c[0] == '#'
}

// Color returns a view color
func (c Color) Color() tcell.Color {
	if c == DefaultColor || c == TransparentColor || c == "" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(string(c)).TrueColor()
}

// ListColors colors message rows by state
type ListColors struct {
	Unread   Color `yaml:"unreadColor"`
	Read     Color `yaml:"readColor"`
	Selected Color `yaml:"selectedColor"`
	Starred  Color `yaml:"starredColor"`
}

// StatusColors colors the status bar per notice level
type StatusColors struct {
	Info    Color `yaml:"infoColor"`
	Success Color `yaml:"successColor"`
	Warning Color `yaml:"warningColor"`
	Error   Color `yaml:"errorColor"`
}

// BodyColors defines colors for body elements
type BodyColors struct {
	FgColor     Color `yaml:"fgColor"`
	BgColor     Color `yaml:"bgColor"`
	BorderColor Color `yaml:"borderColor"`
	FocusColor  Color `yaml:"focusColor"`
}

// ColorsConfig defines the complete color configuration
type ColorsConfig struct {
	Body   BodyColors   `yaml:"body"`
	List   ListColors   `yaml:"list"`
	Status StatusColors `yaml:"status"`
}

// DefaultColors returns the default color configuration
func DefaultColors() *ColorsConfig {
	return &ColorsConfig{
		Body: BodyColors{
			FgColor:     NewColor("#f8f8f2"),
			BgColor:     NewColor("#282a36"),
			BorderColor: NewColor("#44475a"),
			FocusColor:  NewColor("#6272a4"),
		},
		List: ListColors{
			Unread:   NewColor("#ffb86c"),
			Read:     NewColor("#6272a4"),
			Selected: NewColor("#50fa7b"),
			Starred:  NewColor("#f1fa8c"),
		},
		Status: StatusColors{
			Info:    NewColor("#8be9fd"),
			Success: NewColor("#50fa7b"),
			Warning: NewColor("#f1fa8c"),
			Error:   NewColor("#ff5555"),
		},
	}
}
