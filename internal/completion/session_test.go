package completion

import (
	"fmt"
	"testing"
)

func sessionItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = item(fmt.Sprintf("item%02d", i))
	}
	return items
}

func TestSession_Navigation(t *testing.T) {
	s := NewSession(3, 7, sessionItems(20), 0)
	if s.WindowRows() != DefaultWindowRows {
		t.Fatalf("WindowRows = %d", s.WindowRows())
	}
	if s.Selected != 0 || s.Scroll != 0 {
		t.Fatalf("new session at (%d, %d)", s.Selected, s.Scroll)
	}

	steps := []struct {
		move     func()
		selected int
		scroll   int
	}{
		{s.MoveUp, 0, 0},
		{s.MoveDown, 1, 0},
	}
	for i, step := range steps {
		step.move()
		if s.Selected != step.selected || s.Scroll != step.scroll {
			t.Errorf("step %d: at (%d, %d), want (%d, %d)", i, s.Selected, s.Scroll, step.selected, step.scroll)
		}
	}

	for range 7 {
		s.MoveDown()
	}
	if s.Selected != 8 || s.Scroll != 1 {
		t.Errorf("after scrolling down at (%d, %d), want (8, 1)", s.Selected, s.Scroll)
	}

	for range 30 {
		s.MoveDown()
	}
	if s.Selected != 19 || s.Scroll != 12 {
		t.Errorf("at end (%d, %d), want (19, 12)", s.Selected, s.Scroll)
	}
	if v := s.Visible(); len(v) != 8 || v[0].Label != "item12" || v[7].Label != "item19" {
		t.Errorf("Visible = %v", labels(v))
	}

	for range 30 {
		s.MoveUp()
	}
	if s.Selected != 0 || s.Scroll != 0 {
		t.Errorf("at top (%d, %d), want (0, 0)", s.Selected, s.Scroll)
	}

	cur, ok := s.Current()
	if !ok || cur.Label != "item00" {
		t.Errorf("Current = %+v, %v", cur, ok)
	}
}

func TestSession_SmallList(t *testing.T) {
	s := NewSession(0, 0, sessionItems(3), 8)
	for range 5 {
		s.MoveDown()
	}
	if s.Selected != 2 || s.Scroll != 0 {
		t.Errorf("at (%d, %d), want (2, 0)", s.Selected, s.Scroll)
	}
	if len(s.Visible()) != 3 {
		t.Errorf("Visible = %d items", len(s.Visible()))
	}
}

func TestSession_CustomWindow(t *testing.T) {
	s := NewSession(0, 0, sessionItems(10), 3)
	for range 4 {
		s.MoveDown()
	}
	if s.Selected != 4 || s.Scroll != 2 {
		t.Errorf("at (%d, %d), want (4, 2)", s.Selected, s.Scroll)
	}
}

func TestSession_Empty(t *testing.T) {
	s := NewSession(0, 0, nil, 0)
	s.MoveDown()
	s.MoveUp()
	if s.Selected != 0 {
		t.Errorf("Selected = %d", s.Selected)
	}
	if _, ok := s.Current(); ok {
		t.Error("Current on empty session")
	}
	if s.Visible() != nil {
		t.Error("Visible on empty session")
	}
}
