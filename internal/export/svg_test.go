package export

import (
	"strings"
	"testing"

	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/viz"
)

func TestCanvasToSVG(t *testing.T) {
	cv := viz.NewCanvas(2, 1)
	cv.Set(0, 0)
	cv.Set(3, 3)

	svg := CanvasToSVG(cv, 2, "#fff")
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatalf("not a complete document:\n%s", svg)
	}
	if n := strings.Count(svg, "<circle"); n != 2 {
		t.Errorf("circles = %d, want 2", n)
	}
	if !strings.Contains(svg, `width="8" height="8"`) {
		t.Errorf("unexpected size:\n%s", svg)
	}
	if CanvasToSVG(nil, 1, "#fff") != "" {
		t.Error("nil canvas should render nothing")
	}
}

func TestSeriesToSVG(t *testing.T) {
	svg := SeriesToSVG([]float64{3, 2, 1, 1}, 300, 100, "#0f0")
	if n := strings.Count(svg, " L"); n != 3 {
		t.Errorf("segments = %d, want 3", n)
	}
	if !strings.Contains(svg, "M0.0,") {
		t.Errorf("path should start at x=0:\n%s", svg)
	}
	if SeriesToSVG([]float64{1}, 10, 10, "#0f0") != "" {
		t.Error("a single sample has no line")
	}

	flat := SeriesToSVG([]float64{5, 5}, 10, 10, "#0f0")
	if strings.Contains(flat, "NaN") {
		t.Error("flat series produced NaN")
	}
}

func TestStructureSVG(t *testing.T) {
	target := []dynamo.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	fitted := []dynamo.Vec3{{0.1, 0, 0}, {1, 0.1, 0}, {0, 1, 0.1}}

	svg := StructureSVG(target, fitted, 20, 10, 1)
	if strings.Count(svg, "<circle") == 0 {
		t.Error("structure rendered no dots")
	}
}
