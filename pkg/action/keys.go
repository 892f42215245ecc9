package action

import "strings"

// keyNames maps the human readable names models use to the tokens the
// desktop understands. Unknown names pass through unchanged.
var keyNames = map[string]string{
	"enter":      "Enter",
	"return":     "Enter",
	"space":      " ",
	"tab":        "Tab",
	"escape":     "Escape",
	"esc":        "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"arrowright": "ArrowRight",
	"up":         "ArrowUp",
	"down":       "ArrowDown",
	"left":       "ArrowLeft",
	"right":      "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",

	"ctrl":           "Ctrl",
	"ctrl+c":         "Ctrl+c",
	"ctrl+v":         "Ctrl+v",
	"ctrl+x":         "Ctrl+x",
	"ctrl+z":         "Ctrl+z",
	"ctrl+w":         "Ctrl+w",
	"ctrl+t":         "Ctrl+t",
	"ctrl+n":         "Ctrl+n",
	"ctrl+m":         "Ctrl+m",
	"ctrl+a":         "Ctrl+a",
	"ctrl+s":         "Ctrl+s",
	"ctrl+l":         "Ctrl+l",
	"ctrl+tab":       "Ctrl+Tab",
	"ctrl+shift+tab": "Ctrl+Shift+Tab",
}

// MapKey returns the desktop token for name.
func MapKey(name string) string {
	if name != "" && strings.TrimSpace(name) == "" {
		return " "
	}
	name = strings.TrimSpace(name)
	if mapped, ok := keyNames[strings.ToLower(name)]; ok {
		return mapped
	}
	return name
}
