package provider

import (
	"fmt"
	"strings"
)

// Window is the span of a QuoteSeries request.
type Window string

const (
	Window1D Window = "1D"
	Window1W Window = "1W"
	Window1M Window = "1M"
	Window3M Window = "3M"
	Window6M Window = "6M"
	Window1Y Window = "1Y"
	Window5Y Window = "5Y"
)

// DefaultWindow is used when a caller does not ask for one.
const DefaultWindow = Window1M

var windows = map[string]Window{
	"1D": Window1D,
	"1W": Window1W,
	"1M": Window1M,
	"3M": Window3M,
	"6M": Window6M,
	"1Y": Window1Y,
	"5Y": Window5Y,
}

// ParseWindow accepts a window name case-insensitively. An empty string
// yields DefaultWindow.
func ParseWindow(s string) (Window, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultWindow, nil
	}
	if w, ok := windows[s]; ok {
		return w, nil
	}
	return "", fmt.Errorf("unknown window %q", s)
}

func (w Window) String() string { return string(w) }
