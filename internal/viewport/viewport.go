// Package viewport tracks the pan/zoom transform applied over a rendered
// diagram.
package viewport

import (
	"fmt"
	"math"
	"sync"
)

const (
	MinScale   = 0.2
	MaxScale   = 5.0
	ZoomFactor = 1.2

	PrimaryButton = 0
)

type Transform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translateX"`
	TranslateY float64 `json:"translateY"`
}

// Identity is the transform every freshly loaded diagram starts from.
var Identity = Transform{Scale: 1}

// CSS formats t as a CSS transform value.
func (t Transform) CSS() string {
	return fmt.Sprintf("translate(%gpx, %gpx) scale(%g)", t.TranslateX, t.TranslateY, t.Scale)
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Controller is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	t         Transform
	state     State
	start     Point
	startPanX float64
	startPanY float64
}

func New() *Controller {
	return &Controller{t: Identity}
}

func (c *Controller) Transform() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PointerDown starts a drag for the primary button only.
func (c *Controller) PointerDown(button int, x, y float64) bool {
	if button != PrimaryButton {
		return false
	}
	c.beginDrag(Point{X: x, Y: y})
	return true
}

// TouchStart starts a drag for a single finger only.
func (c *Controller) TouchStart(touches []Point) bool {
	if len(touches) != 1 {
		return false
	}
	c.beginDrag(touches[0])
	return true
}

func (c *Controller) beginDrag(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Dragging
	c.start = p
	c.startPanX, c.startPanY = c.t.TranslateX, c.t.TranslateY
}

// PointerMove pans while dragging and reports whether the transform changed.
func (c *Controller) PointerMove(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Dragging {
		return false
	}
	c.t.TranslateX = c.startPanX + (x - c.start.X)
	c.t.TranslateY = c.startPanY + (y - c.start.Y)
	return true
}

func (c *Controller) TouchMove(touches []Point) bool {
	if len(touches) != 1 {
		return false
	}
	return c.PointerMove(touches[0].X, touches[0].Y)
}

func (c *Controller) PointerUp()    { c.endDrag() }
func (c *Controller) PointerLeave() { c.endDrag() }
func (c *Controller) TouchEnd()     { c.endDrag() }
func (c *Controller) TouchCancel()  { c.endDrag() }

func (c *Controller) endDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
}

// ZoomIn and ZoomOut scale around the transform origin; translate is kept.
func (c *Controller) ZoomIn() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t.Scale = clamp(c.t.Scale * ZoomFactor)
	return c.t
}

func (c *Controller) ZoomOut() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t.Scale = clamp(c.t.Scale / ZoomFactor)
	return c.t
}

// Reset returns to the identity transform and ends any drag.
func (c *Controller) Reset() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = Identity
	c.state = Idle
	return c.t
}

func clamp(s float64) float64 {
	return math.Min(MaxScale, math.Max(MinScale, s))
}
