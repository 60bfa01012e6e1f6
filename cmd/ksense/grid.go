package main

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// grid is an in-memory canvas that renders to plain text. Styles are
// dropped.
type grid struct {
	w, h  int
	cells [][]rune
}

func newGrid(w, h int) *grid {
	cells := make([][]rune, h)
	for y := range cells {
		cells[y] = []rune(strings.Repeat(" ", w))
	}
	return &grid{w: w, h: h, cells: cells}
}

func (g *grid) SetContent(x, y int, primary rune, _ []rune, _ tcell.Style) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	g.cells[y][x] = primary
	// The trailing half of a wide rune is not printed.
	if runewidth.RuneWidth(primary) == 2 && x+1 < g.w {
		g.cells[y][x+1] = 0
	}
}

func (g *grid) Size() (int, int) {
	return g.w, g.h
}

func (g *grid) drawString(x, y int, s string) {
	for _, r := range s {
		if r == '\t' {
			r = ' '
		}
		g.SetContent(x, y, r, nil, tcell.StyleDefault)
		x += max(runewidth.RuneWidth(r), 1)
	}
}

func (g *grid) String() string {
	var b strings.Builder
	for _, row := range g.cells {
		var line strings.Builder
		for _, r := range row {
			if r != 0 {
				line.WriteRune(r)
			}
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
