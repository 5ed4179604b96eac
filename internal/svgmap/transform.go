package svgmap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale limits and steps for the view transform.
const (
	MinScale  = 0.3
	MaxScale  = 4.0
	ZoomStep  = 0.2
	WheelStep = 0.1
)

// ViewTransform is the pan/zoom state applied to the mounted map.
// Scale stays within [MinScale, MaxScale]; translation is unconstrained.
type ViewTransform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
}

// Identity returns the reset transform.
func Identity() ViewTransform {
	return ViewTransform{Scale: 1}
}

// WithScale returns t with its scale moved by delta and clamped to bounds.
func (t ViewTransform) WithScale(delta float64) ViewTransform {
	t.Scale = clampScale(roundScale(t.Scale + delta))
	return t
}

// Translate accumulates a pan delta.
func (t ViewTransform) Translate(dx, dy float64) ViewTransform {
	t.TranslateX += dx
	t.TranslateY += dy
	return t
}

// CSS renders the transform the way the page applies it, anchored at the
// viewport center.
func (t ViewTransform) CSS() string {
	return fmt.Sprintf("translate(%spx, %spx) scale(%s)",
		formatFloat(t.TranslateX), formatFloat(t.TranslateY), formatFloat(t.Scale))
}

func clampScale(s float64) float64 {
	return math.Max(MinScale, math.Min(MaxScale, s))
}

// roundScale keeps repeated 0.1/0.2 steps from drifting (1.2000000000000002).
func roundScale(s float64) float64 {
	return math.Round(s*1000) / 1000
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type styleProp struct{ name, value string }

// mergeStyle sets props on an inline style declaration list. Declarations
// for other properties keep their order; overridden ones are dropped.
func mergeStyle(base string, props []styleProp) string {
	set := make(map[string]bool, len(props))
	for _, p := range props {
		set[p.name] = true
	}
	var decls []string
	for _, d := range strings.Split(base, ";") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		name, _, _ := strings.Cut(d, ":")
		if set[strings.ToLower(strings.TrimSpace(name))] {
			continue
		}
		decls = append(decls, d)
	}
	for _, p := range props {
		decls = append(decls, p.name+":"+p.value)
	}
	return strings.Join(decls, ";")
}
