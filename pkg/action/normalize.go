package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/docker/deskpilot/pkg/desktop"
)

// numericFields is the closed table of fields that must be numbers at
// dispatch time. Models routinely send them as strings. Coordinate aliases
// are listed in precedence order.
var numericFields = []struct {
	name  string
	apply func(*Descriptor, any)
}{
	{"coordinate", setCoordinate},
	{"coords", setCoordinate},
	{"coordinates", setCoordinate},
	{"duration", setDuration},
	{"scroll_amount", setScrollAmount},
}

// Parse decodes the JSON arguments of a tool call and normalizes them.
func Parse(args []byte) (Descriptor, error) {
	if len(strings.TrimSpace(string(args))) == 0 {
		return Descriptor{}, errors.New("empty action arguments")
	}
	var raw map[string]any
	if err := json.Unmarshal(args, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("decoding action arguments: %w", err)
	}
	return Normalize(raw), nil
}

// Normalize turns raw model output into a Descriptor. Numeric fields listed
// in numericFields are coerced from strings, coordinates are clamped to the
// display and unknown action types are kept so the executor can reject them.
func Normalize(raw map[string]any) Descriptor {
	d := Descriptor{
		Type:            Type(stringField(raw, "action")),
		Text:            stringField(raw, "text"),
		Key:             stringField(raw, "key"),
		ScrollDirection: strings.ToLower(stringField(raw, "scroll_direction")),
	}
	if d.Type == "" {
		d.Type = Type(stringField(raw, "type"))
	}

	for _, f := range numericFields {
		if v, ok := raw[f.name]; ok && v != nil {
			f.apply(&d, v)
		}
	}

	return d
}

func setCoordinate(d *Descriptor, v any) {
	if d.Coordinate != nil {
		return
	}
	if c, ok := toCoordinate(v); ok {
		d.Coordinate = &c
	}
}

func setDuration(d *Descriptor, v any) {
	if n, ok := toNumber(v); ok {
		d.Duration = n
	}
}

func setScrollAmount(d *Descriptor, v any) {
	if n, ok := toNumber(v); ok {
		d.ScrollAmount = int(math.Round(n))
	}
}

func stringField(raw map[string]any, name string) string {
	switch v := raw[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toCoordinate(v any) ([2]int, bool) {
	var items []any
	switch c := v.(type) {
	case []any:
		items = c
	case []float64:
		for _, f := range c {
			items = append(items, f)
		}
	case []int:
		for _, i := range c {
			items = append(items, i)
		}
	case string:
		// "10,20" or "[10, 20]"
		for p := range strings.SplitSeq(strings.Trim(c, "[]() "), ",") {
			items = append(items, p)
		}
	default:
		return [2]int{}, false
	}
	if len(items) < 2 {
		return [2]int{}, false
	}

	x, okX := toNumber(items[0])
	y, okY := toNumber(items[1])
	if !okX || !okY {
		return [2]int{}, false
	}
	return [2]int{
		clamp(int(math.Round(x)), desktop.DisplayWidth-1),
		clamp(int(math.Round(y)), desktop.DisplayHeight-1),
	}, true
}

func clamp(v, hi int) int {
	return min(max(v, 0), hi)
}
