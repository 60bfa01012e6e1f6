package completion

// DefaultWindowRows is the number of menu rows visible at once.
const DefaultWindowRows = 8

// Session is an open completion menu anchored to one cursor line.
type Session struct {
	Line      int
	AnchorCol int
	Selected  int
	Scroll    int
	Items     []Item

	rows int
}

// NewSession opens a menu over items with the first item selected. A
// non-positive rows means DefaultWindowRows.
func NewSession(line, anchorCol int, items []Item, rows int) *Session {
	if rows <= 0 {
		rows = DefaultWindowRows
	}
	return &Session{
		Line:      line,
		AnchorCol: anchorCol,
		Items:     items,
		rows:      rows,
	}
}

// WindowRows returns the visible window height.
func (s *Session) WindowRows() int {
	if s.rows <= 0 {
		return DefaultWindowRows
	}
	return s.rows
}

// MoveUp selects the previous item, stopping at the first.
func (s *Session) MoveUp() {
	if s.Selected > 0 {
		s.Selected--
	}
	s.keepVisible()
}

// MoveDown selects the next item, stopping at the last.
func (s *Session) MoveDown() {
	if s.Selected < len(s.Items)-1 {
		s.Selected++
	}
	s.keepVisible()
}

func (s *Session) keepVisible() {
	rows := s.WindowRows()
	if s.Selected < s.Scroll {
		s.Scroll = s.Selected
	}
	if s.Selected >= s.Scroll+rows {
		s.Scroll = s.Selected + 1 - rows
	}
}

// Current returns the selected item.
func (s *Session) Current() (Item, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Items) {
		return Item{}, false
	}
	return s.Items[s.Selected], true
}

// Visible returns the items inside the scroll window.
func (s *Session) Visible() []Item {
	if len(s.Items) == 0 {
		return nil
	}
	start := min(s.Scroll, len(s.Items)-1)
	end := min(start+s.WindowRows(), len(s.Items))
	return s.Items[start:end]
}
