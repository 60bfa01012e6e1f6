package assist

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/dshills/ksense/internal/completion"
)

const (
	popupMinWidth = 18
	popupMaxWidth = 48
	popupTitle    = " Suggestions "
)

// Canvas is the part of tcell.Screen the popup draws on.
type Canvas interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (width, height int)
}

// PopupStyle holds the popup's colors.
type PopupStyle struct {
	Border   tcell.Style
	Item     tcell.Style
	Selected tcell.Style
}

// DefaultPopupStyle is cyan-bordered with a cyan selection bar.
func DefaultPopupStyle() PopupStyle {
	return PopupStyle{
		Border:   tcell.StyleDefault.Foreground(tcell.ColorDarkCyan),
		Item:     tcell.StyleDefault.Foreground(tcell.ColorGray),
		Selected: tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorDarkCyan).Bold(true),
	}
}

// Rect is a screen rectangle in cells.
type Rect struct {
	X, Y, Width, Height int
}

// PopupRect places the menu for s one row below the anchor cell (x, y),
// shifted left and up as needed to stay on a screen of the given size.
func PopupRect(s *completion.Session, x, y, screenW, screenH int) (Rect, bool) {
	visible := s.Visible()
	if len(visible) == 0 || screenW < popupMinWidth || screenH < 3 {
		return Rect{}, false
	}

	widest := 0
	for _, it := range visible {
		widest = max(widest, runewidth.StringWidth(it.Label))
	}
	width := min(max(widest+3, popupMinWidth), popupMaxWidth, screenW)
	height := min(len(visible)+2, screenH)

	r := Rect{X: x, Y: y + 1, Width: width, Height: height}
	r.X = max(min(r.X, screenW-width), 0)
	r.Y = max(min(r.Y, screenH-height), 0)
	return r, true
}

// DrawPopup draws the menu for s anchored at cell (x, y).
func DrawPopup(c Canvas, s *completion.Session, x, y int, style PopupStyle) {
	if s == nil {
		return
	}
	w, h := c.Size()
	r, ok := PopupRect(s, x, y, w, h)
	if !ok {
		return
	}

	drawBox(c, r, style.Border)
	drawText(c, r.X+2, r.Y, r.Width-4, popupTitle, style.Border)

	inner := r.Width - 2
	for i, it := range s.Visible() {
		row := r.Y + 1 + i
		if row >= r.Y+r.Height-1 {
			break
		}
		st := style.Item
		if s.Scroll+i == s.Selected {
			st = style.Selected
		}
		fill(c, r.X+1, row, inner, st)
		drawText(c, r.X+1, row, inner, " "+it.Label, st)
	}
}

func drawBox(c Canvas, r Rect, st tcell.Style) {
	right, bottom := r.X+r.Width-1, r.Y+r.Height-1
	for x := r.X + 1; x < right; x++ {
		c.SetContent(x, r.Y, tcell.RuneHLine, nil, st)
		c.SetContent(x, bottom, tcell.RuneHLine, nil, st)
	}
	for y := r.Y + 1; y < bottom; y++ {
		c.SetContent(r.X, y, tcell.RuneVLine, nil, st)
		c.SetContent(right, y, tcell.RuneVLine, nil, st)
		fill(c, r.X+1, y, r.Width-2, tcell.StyleDefault)
	}
	c.SetContent(r.X, r.Y, tcell.RuneULCorner, nil, st)
	c.SetContent(right, r.Y, tcell.RuneURCorner, nil, st)
	c.SetContent(r.X, bottom, tcell.RuneLLCorner, nil, st)
	c.SetContent(right, bottom, tcell.RuneLRCorner, nil, st)
}

func fill(c Canvas, x, y, n int, st tcell.Style) {
	for i := range n {
		c.SetContent(x+i, y, ' ', nil, st)
	}
}

// drawText writes s from (x, y), clipped to width cells.
func drawText(c Canvas, x, y, width int, s string, st tcell.Style) {
	used := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			continue
		}
		if used+rw > width {
			return
		}
		c.SetContent(x+used, y, r, nil, st)
		used += rw
	}
}
