// Package export renders fits and energy traces as standalone SVG documents.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/densfit/internal/dynamo"
	"github.com/san-kum/densfit/internal/particles"
	"github.com/san-kum/densfit/internal/viz"
)

var dotBits = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

const background = "#0a0a0a"

// CanvasToSVG draws every set braille dot of canvas as a circle. scale is the
// size of one sub-pixel in SVG units.
func CanvasToSVG(canvas *viz.Canvas, scale float64, fill string) string {
	if canvas == nil {
		return ""
	}
	pw, ph := canvas.PixelSize()
	width := float64(pw) * scale
	height := float64(ph) * scale

	var sb strings.Builder
	header(&sb, width, height)
	fmt.Fprintf(&sb, "<g fill=%q>\n", fill)

	r := scale * 0.4
	for row := 0; row < canvas.Height; row++ {
		for col := 0; col < canvas.Width; col++ {
			pattern := canvas.Grid[row][col] - 0x2800
			if pattern <= 0 {
				continue
			}
			baseX := float64(col) * scale * 2
			baseY := float64(row) * scale * 4
			for dy := 0; dy < 4; dy++ {
				for dx := 0; dx < 2; dx++ {
					if pattern&dotBits[dy][dx] == 0 {
						continue
					}
					cx := baseX + float64(dx)*scale + scale/2
					cy := baseY + float64(dy)*scale + scale/2
					fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, r)
				}
			}
		}
	}

	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// StructureSVG projects a fitted structure, drawn as a chain over the target
// points, through the default camera for the target. Without a target the
// camera frames the fitted structure.
func StructureSVG(target, fitted []dynamo.Vec3, w, h int, scale float64) string {
	frame := target
	if len(frame) == 0 {
		frame = fitted
	}
	center := particles.Center(&particles.Set{X: frame})
	radius := 1.0
	for _, x := range frame {
		radius = max(radius, x.Sub(center).Norm())
	}
	cam := viz.NewCamera(center, radius)
	cv := viz.NewCanvas(w, h)
	viz.DrawPoints(cv, cam, target)
	viz.DrawChain(cv, cam, fitted)
	return CanvasToSVG(cv, scale, "#00ff9f")
}

// SeriesToSVG draws ys against their index as a polyline padded by a tenth
// of the value range.
func SeriesToSVG(ys []float64, width, height int, stroke string) string {
	if len(ys) < 2 {
		return ""
	}

	minY, maxY := ys[0], ys[0]
	for _, y := range ys {
		minY = min(minY, y)
		maxY = max(maxY, y)
	}
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	rangeY *= 1.2
	stepX := float64(width) / float64(len(ys)-1)

	var sb strings.Builder
	header(&sb, float64(width), float64(height))
	fmt.Fprintf(&sb, "<path fill=\"none\" stroke=%q stroke-width=\"1.5\" d=\"M", stroke)

	for i, y := range ys {
		px := float64(i) * stepX
		py := float64(height) - (y-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", px, py)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", px, py)
		}
	}

	sb.WriteString("\"/>\n</svg>")
	return sb.String()
}

func header(sb *strings.Builder, w, h float64) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill=%q/>
`, w, h, w, h, background)
}
