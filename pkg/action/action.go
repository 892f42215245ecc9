// Package action defines the closed set of desktop actions a model may
// propose, the normalization applied to raw model output, and the executor
// that dispatches them to a desktop.
package action

import (
	"fmt"
	"slices"
)

type Type string

const (
	Screenshot  Type = "screenshot"
	LeftClick   Type = "left_click"
	RightClick  Type = "right_click"
	DoubleClick Type = "double_click"
	TypeText    Type = "type"
	Key         Type = "key"
	Scroll      Type = "scroll"
	Wait        Type = "wait"
)

// Types lists every supported action, in the order advertised to models.
var Types = []Type{Screenshot, LeftClick, RightClick, DoubleClick, TypeText, Key, Scroll, Wait}

func (t Type) Supported() bool {
	return slices.Contains(Types, t)
}

// ChangesState reports whether the desktop may look different after the
// action ran. Reads and pauses don't.
func (t Type) ChangesState() bool {
	return t.Supported() && t != Screenshot && t != Wait
}

// Descriptor is one normalized action proposed by a model.
type Descriptor struct {
	Type            Type    `json:"action" jsonschema:"The type of action to perform on the computer"`
	Coordinate      *[2]int `json:"coordinate,omitempty" jsonschema:"X,Y pixel coordinates for click actions within the 1024x768 display"`
	Text            string  `json:"text,omitempty" jsonschema:"Text to type or a single key to press, e.g. 'enter' or 'ctrl+c'"`
	Key             string  `json:"key,omitempty" jsonschema:"Key to press, alternative to text for key actions"`
	ScrollDirection string  `json:"scroll_direction,omitempty" jsonschema:"Direction to scroll: up, down, left or right"`
	ScrollAmount    int     `json:"scroll_amount,omitempty" jsonschema:"Amount to scroll"`
	Duration        float64 `json:"duration,omitempty" jsonschema:"Duration to wait in seconds"`

	// ToolCallID ties the action to the model message that proposed it.
	ToolCallID string `json:"-"`
}

func (d Descriptor) String() string {
	switch d.Type {
	case LeftClick, RightClick, DoubleClick:
		if d.Coordinate != nil {
			return fmt.Sprintf("%s(%d, %d)", d.Type, d.Coordinate[0], d.Coordinate[1])
		}
	case TypeText:
		return fmt.Sprintf("%s(%q)", d.Type, d.Text)
	case Key:
		return fmt.Sprintf("%s(%s)", d.Type, d.keyName())
	case Scroll:
		return fmt.Sprintf("%s(%s, %d)", d.Type, d.ScrollDirection, d.ScrollAmount)
	case Wait:
		return fmt.Sprintf("%s(%gs)", d.Type, d.Duration)
	}
	return string(d.Type)
}

func (d Descriptor) keyName() string {
	if d.Key != "" {
		return d.Key
	}
	return d.Text
}

// Result is the outcome of executing one Descriptor. Exactly one of Text,
// Image or Error is meaningful.
type Result struct {
	Action   Type   `json:"action"`
	Text     string `json:"text,omitempty"`
	Image    string `json:"image,omitempty"`
	Error    string `json:"error,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

func (r Result) Failed() bool {
	return r.Error != ""
}

// Summary renders the result as text for a model, without image data.
func (r Result) Summary() string {
	switch {
	case r.Failed():
		return "Error: " + r.Error
	case r.Image != "":
		return "Screenshot captured"
	case r.Fallback != "":
		return r.Text + " (" + r.Fallback + ")"
	default:
		return r.Text
	}
}

// WithoutImage returns a copy of r with the image payload replaced by a
// short marker.
func (r Result) WithoutImage() Result {
	if r.Image != "" {
		r.Image = ""
		if r.Text == "" {
			r.Text = "[screenshot]"
		}
	}
	return r
}

// Outcome pairs a dispatched action with its result.
type Outcome struct {
	Action Descriptor `json:"action"`
	Result Result     `json:"result"`
}
