package viewport

import (
	"math/rand"
	"testing"
)

func TestZoomStaysInRange(t *testing.T) {
	c := New()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		var tr Transform
		if rng.Intn(2) == 0 {
			tr = c.ZoomIn()
		} else {
			tr = c.ZoomOut()
		}
		if tr.Scale < MinScale || tr.Scale > MaxScale {
			t.Fatalf("step %d: scale %v out of range", i, tr.Scale)
		}
	}
}

func TestZoomSaturates(t *testing.T) {
	c := New()
	for i := 0; i < 50; i++ {
		c.ZoomIn()
	}
	if got := c.Transform().Scale; got != MaxScale {
		t.Errorf("scale after many ZoomIn = %v, want %v", got, MaxScale)
	}
	for i := 0; i < 50; i++ {
		c.ZoomOut()
	}
	if got := c.Transform().Scale; got != MinScale {
		t.Errorf("scale after many ZoomOut = %v, want %v", got, MinScale)
	}
}

func TestZoomKeepsTranslate(t *testing.T) {
	c := New()
	c.PointerDown(PrimaryButton, 0, 0)
	c.PointerMove(30, -10)
	c.PointerUp()
	tr := c.ZoomIn()
	if tr.TranslateX != 30 || tr.TranslateY != -10 {
		t.Errorf("translate changed by zoom: %+v", tr)
	}
}

func TestResetFromAnyState(t *testing.T) {
	c := New()
	c.ZoomIn()
	c.ZoomIn()
	c.PointerDown(PrimaryButton, 5, 5)
	c.PointerMove(100, 200)

	tr := c.Reset()
	if tr != Identity {
		t.Errorf("Reset = %+v, want %+v", tr, Identity)
	}
	if c.State() != Idle {
		t.Errorf("state after Reset = %v", c.State())
	}
}

func TestDragLifecycle(t *testing.T) {
	c := New()
	c.PointerDown(PrimaryButton, 0, 0)
	c.PointerMove(10, 20)
	c.PointerUp()

	// A second drag accumulates on top of the first.
	c.PointerDown(PrimaryButton, 100, 100)
	if c.State() != Dragging {
		t.Fatalf("state = %v, want dragging", c.State())
	}
	c.PointerMove(105, 90)
	tr := c.Transform()
	if tr.TranslateX != 15 || tr.TranslateY != 10 {
		t.Errorf("translate = (%v, %v), want (15, 10)", tr.TranslateX, tr.TranslateY)
	}
	if tr.Scale != 1 {
		t.Errorf("scale changed during drag: %v", tr.Scale)
	}

	c.PointerLeave()
	if c.PointerMove(500, 500) {
		t.Error("move after leave should not pan")
	}
}

func TestSecondaryButtonIgnored(t *testing.T) {
	c := New()
	if c.PointerDown(2, 0, 0) {
		t.Error("right button should not start a drag")
	}
	if c.PointerMove(10, 10) {
		t.Error("move without drag should not pan")
	}
}

func TestTouch(t *testing.T) {
	c := New()
	if c.TouchStart([]Point{{1, 1}, {2, 2}}) {
		t.Error("two-finger touch should not start a drag")
	}
	c.TouchStart([]Point{{10, 10}})
	c.TouchMove([]Point{{4, 16}})
	c.TouchCancel()
	tr := c.Transform()
	if tr.TranslateX != -6 || tr.TranslateY != 6 {
		t.Errorf("translate = (%v, %v), want (-6, 6)", tr.TranslateX, tr.TranslateY)
	}
}

func TestCSS(t *testing.T) {
	tr := Transform{Scale: 1.2, TranslateX: 10, TranslateY: -4.5}
	if got := tr.CSS(); got != "translate(10px, -4.5px) scale(1.2)" {
		t.Errorf("CSS = %q", got)
	}
}
