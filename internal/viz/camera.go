package viz

import (
	"math"

	"github.com/san-kum/densfit/internal/dynamo"
)

// Camera projects particle coordinates onto the canvas. Points are rotated
// about Center, scaled by Zoom and seen in perspective from Distance.
type Camera struct {
	Center           dynamo.Vec3
	Distance         float64
	RotX, RotY, RotZ float64
	Zoom             float64
}

func NewCamera(center dynamo.Vec3, radius float64) *Camera {
	if radius <= 0 {
		radius = 1
	}
	return &Camera{Center: center, Distance: 4 * radius, RotX: -math.Pi / 3, Zoom: 1 / radius}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) RotateZ(a float64) { c.RotZ += a }
func (c *Camera) ZoomIn()           { c.Zoom *= 1.2 }
func (c *Camera) ZoomOut()          { c.Zoom /= 1.2 }

func (c *Camera) rotate(p dynamo.Vec3) dynamo.Vec3 {
	p = p.Sub(c.Center)
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p[1], p[2] = p[1]*cx-p[2]*sx, p[1]*sx+p[2]*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p[0], p[2] = p[0]*cy+p[2]*sy, -p[0]*sy+p[2]*cy
	cz, sz := math.Cos(c.RotZ), math.Sin(c.RotZ)
	p[0], p[1] = p[0]*cz-p[1]*sz, p[0]*sz+p[1]*cz
	return p
}

// Project maps p to sub-pixel coordinates on a sw x sh canvas. ok is false
// for points behind the camera.
func (c *Camera) Project(p dynamo.Vec3, sw, sh int) (x, y int, ok bool) {
	r := c.rotate(p)
	depth := c.Distance - r[2]
	if depth <= 0 {
		return 0, 0, false
	}
	scale := c.Distance / depth * c.Zoom * float64(min(sw, sh)) / 2.5
	x = int(r[0]*scale) + sw/2
	y = int(-r[1]*scale) + sh/2
	return x, y, true
}

// DrawChain draws consecutive particles joined by lines.
func DrawChain(cv *Canvas, cam *Camera, xs []dynamo.Vec3) {
	sw, sh := cv.PixelSize()
	px, py, prev := 0, 0, false
	for _, p := range xs {
		x, y, ok := cam.Project(p, sw, sh)
		if ok {
			cv.Dot(x, y)
			if prev {
				cv.DrawLine(px, py, x, y)
			}
		}
		px, py, prev = x, y, ok
	}
}

// DrawPoints marks each particle with a single dot.
func DrawPoints(cv *Canvas, cam *Camera, xs []dynamo.Vec3) {
	sw, sh := cv.PixelSize()
	for _, p := range xs {
		if x, y, ok := cam.Project(p, sw, sh); ok {
			cv.Set(x, y)
		}
	}
}
