package svgmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"
)

// originalViewBoxAttr keeps the reference viewport on the root element.
const originalViewBoxAttr = "data-original-viewbox"

// ViewBox is an SVG coordinate window.
type ViewBox struct {
	MinX, MinY, Width, Height float64
}

// String formats the box as an SVG viewBox attribute value.
func (v ViewBox) String() string {
	return strings.Join([]string{
		formatFloat(v.MinX), formatFloat(v.MinY),
		formatFloat(v.Width), formatFloat(v.Height),
	}, " ")
}

// ParseViewBox parses "minX minY width height", comma or space separated.
func ParseViewBox(s string) (ViewBox, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 4 {
		return ViewBox{}, fmt.Errorf("viewBox %q: want 4 numbers, got %d", s, len(fields))
	}
	var nums [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ViewBox{}, fmt.Errorf("viewBox %q: %w", s, err)
		}
		nums[i] = n
	}
	if nums[2] < 0 || nums[3] < 0 {
		return ViewBox{}, fmt.Errorf("viewBox %q: negative size", s)
	}
	return ViewBox{MinX: nums[0], MinY: nums[1], Width: nums[2], Height: nums[3]}, nil
}

// setupViewport captures the document's native viewBox as the reference
// viewport, computing one from content bounds when the document declares
// none (or declares one that does not parse). It also returns the attribute
// text to restore, which is the declared value verbatim when there is one.
func setupViewport(root *etree.Element) (ViewBox, string) {
	if declared := root.SelectAttrValue("viewBox", ""); declared != "" {
		if vb, err := ParseViewBox(declared); err == nil {
			root.CreateAttr(originalViewBoxAttr, declared)
			return vb, declared
		}
	}

	vb := contentViewBox(root)
	raw := vb.String()
	root.CreateAttr("viewBox", raw)
	root.CreateAttr(originalViewBoxAttr, raw)
	return vb, raw
}

// contentViewBox approximates the rendered bounds of the document's shapes.
// Element transforms and path data are not taken into account.
func contentViewBox(root *etree.Element) ViewBox {
	var pts orb.MultiPoint
	walk(root, func(el *etree.Element) {
		pts = append(pts, shapePoints(el)...)
	})
	if len(pts) > 0 {
		b := pts.Bound()
		return ViewBox{
			MinX:   b.Min.X(),
			MinY:   b.Min.Y(),
			Width:  b.Max.X() - b.Min.X(),
			Height: b.Max.Y() - b.Min.Y(),
		}
	}

	w := attrFloat(root, "width")
	h := attrFloat(root, "height")
	if w > 0 && h > 0 {
		return ViewBox{Width: w, Height: h}
	}
	return ViewBox{Width: 100, Height: 100}
}

func shapePoints(el *etree.Element) []orb.Point {
	switch el.Tag {
	case "circle":
		cx, cy, r := attrFloat(el, "cx"), attrFloat(el, "cy"), attrFloat(el, "r")
		return []orb.Point{{cx - r, cy - r}, {cx + r, cy + r}}
	case "ellipse":
		cx, cy := attrFloat(el, "cx"), attrFloat(el, "cy")
		rx, ry := attrFloat(el, "rx"), attrFloat(el, "ry")
		return []orb.Point{{cx - rx, cy - ry}, {cx + rx, cy + ry}}
	case "rect", "image", "use":
		x, y := attrFloat(el, "x"), attrFloat(el, "y")
		return []orb.Point{{x, y}, {x + attrFloat(el, "width"), y + attrFloat(el, "height")}}
	case "line":
		return []orb.Point{
			{attrFloat(el, "x1"), attrFloat(el, "y1")},
			{attrFloat(el, "x2"), attrFloat(el, "y2")},
		}
	case "text":
		return []orb.Point{{attrFloat(el, "x"), attrFloat(el, "y")}}
	case "polyline", "polygon":
		return parsePoints(el.SelectAttrValue("points", ""))
	}
	return nil
}

func parsePoints(s string) []orb.Point {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	var pts []orb.Point
	for i := 0; i+1 < len(fields); i += 2 {
		x, errX := strconv.ParseFloat(fields[i], 64)
		y, errY := strconv.ParseFloat(fields[i+1], 64)
		if errX != nil || errY != nil {
			continue
		}
		pts = append(pts, orb.Point{x, y})
	}
	return pts
}

// attrFloat reads a numeric attribute, tolerating a trailing "px".
func attrFloat(el *etree.Element, key string) float64 {
	v := strings.TrimSuffix(strings.TrimSpace(el.SelectAttrValue(key, "")), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
