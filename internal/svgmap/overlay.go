package svgmap

import (
	"strings"

	"github.com/beevik/etree"
)

// OverlayID identifies the highlight overlay node in rendered output.
const OverlayID = "station-highlight-overlay"

const keyframesID = "station-highlight-keyframes"

// highlightStyle is the fixed visual treatment of the overlay.
const highlightStyle = "fill:#ff0000;font-weight:bold;" +
	"filter:drop-shadow(0 0 15px #ff0000);" +
	"animation:earthquakeWave 3s infinite;" +
	"pointer-events:none"

const pulseKeyframes = `@keyframes earthquakeWave {
  0% { opacity: 1; filter: drop-shadow(0 0 15px #ff0000); }
  25% { opacity: 0.9; filter: drop-shadow(0 0 25px #ff0000); }
  50% { opacity: 1; filter: drop-shadow(0 0 20px #ff0000); }
  75% { opacity: 0.8; filter: drop-shadow(0 0 30px #ff0000); }
  100% { opacity: 1; filter: drop-shadow(0 0 15px #ff0000); }
}`

// OverlaySpec carries the geometry and typography the overlay needs from the
// matched label. Empty fields are omitted from the overlay.
type OverlaySpec struct {
	Text       string
	X, Y       string
	DX, DY     string
	Transform  string
	FontSize   string
	FontFamily string
	TextAnchor string
}

// labelOverlaySpec reads the fields an overlay needs from a label node.
func labelOverlaySpec(label *etree.Element) OverlaySpec {
	return OverlaySpec{
		Text:       strings.TrimSpace(textContent(label)),
		X:          label.SelectAttrValue("x", ""),
		Y:          label.SelectAttrValue("y", ""),
		DX:         label.SelectAttrValue("dx", ""),
		DY:         label.SelectAttrValue("dy", ""),
		Transform:  label.SelectAttrValue("transform", ""),
		FontSize:   label.SelectAttrValue("font-size", ""),
		FontFamily: label.SelectAttrValue("font-family", ""),
		TextAnchor: label.SelectAttrValue("text-anchor", ""),
	}
}

// NewOverlay builds a detached highlight text node from spec.
func NewOverlay(spec OverlaySpec) *etree.Element {
	el := etree.NewElement("text")
	el.CreateAttr("id", OverlayID)
	for _, a := range [...]struct{ key, value string }{
		{"x", spec.X},
		{"y", spec.Y},
		{"dx", spec.DX},
		{"dy", spec.DY},
		{"transform", spec.Transform},
		{"font-size", spec.FontSize},
		{"font-family", spec.FontFamily},
		{"text-anchor", spec.TextAnchor},
	} {
		if a.value != "" {
			el.CreateAttr(a.key, a.value)
		}
	}
	el.CreateAttr("style", highlightStyle)
	el.SetText(spec.Text)
	return el
}

// injectKeyframes adds the pulse animation style once per document.
func injectKeyframes(root *etree.Element) {
	for _, child := range root.ChildElements() {
		if child.Tag == "style" && child.SelectAttrValue("id", "") == keyframesID {
			return
		}
	}
	style := etree.NewElement("style")
	style.Space = root.Space
	style.CreateAttr("id", keyframesID)
	style.SetText(pulseKeyframes)
	root.InsertChildAt(0, style)
}
