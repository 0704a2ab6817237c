// Package view is the interactive trace visualizer: a hex dump of the
// captured buffer and a collapsible action tree, kept in sync through the
// byte-range index. Views are read-only over an immutable trace.
package view

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hexprov/hexprov/internal/index"
	"github.com/hexprov/hexprov/internal/trace"
)

// focusState is the two-variant focus machine plus the initial empty state.
// Exactly one logical focus exists at a time; cross-pane interaction flips
// the variant, same-pane navigation loops back to it.
type focusState int

const (
	focusIdle focusState = iota
	focusByte
	focusSpan
)

const (
	minHexColumns = 1
	maxHexColumns = 64
)

type Options struct {
	HexColumns int
}

type Model struct {
	trc       *trace.Trace
	idx       *index.Index
	nodes     []*node
	collapsed map[*trace.Action]bool

	focus  focusState
	offset int   // hex cursor, valid in focusByte
	sel    *node // tree selection, valid in focusSpan

	columns int
	width   int
	height  int
	hexTop  int // first visible hex row
	treeTop int // first visible tree row

	jumping bool
	jumpBuf string

	coverage float64
	status   string

	quitting bool
}

func NewModel(t *trace.Trace, idx *index.Index, opts Options) *Model {
	columns := opts.HexColumns
	if columns < minHexColumns || columns > maxHexColumns {
		columns = 16
	}
	nodes := flatten(t.Root)
	m := &Model{
		trc:       t,
		idx:       idx,
		nodes:     nodes,
		collapsed: make(map[*trace.Action]bool),
		columns:   columns,
		width:     80,
		height:    24,
		coverage:  coverageRatio(idx),
	}
	if len(nodes) > 0 {
		m.sel = nodes[0]
	}
	return m
}

// coverageRatio is the fraction of buffer bytes touched by at least one read.
func coverageRatio(idx *index.Index) float64 {
	size := idx.Size()
	if size == 0 {
		return 0
	}
	covered := 0
	// Entries are sorted by start; fold into a running union.
	high := 0
	for _, e := range idx.Entries() {
		start, end := e.Interval.Start, e.Interval.End
		if start < high {
			start = high
		}
		if end > high {
			covered += end - start
			high = end
		}
	}
	return float64(covered) / float64(size)
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.clampScroll()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jumping {
		return m.handleJumpKey(msg)
	}

	m.status = ""
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.crossPane()
	case ":", "o":
		m.jumping = true
		m.jumpBuf = ""
	case "+", "=":
		m.setColumns(m.columns + 1)
	case "-", "_":
		m.setColumns(m.columns - 1)
	default:
		switch m.focus {
		case focusSpan:
			m.handleTreeKey(msg)
		default:
			m.handleHexKey(msg)
		}
	}
	return m, nil
}

func (m *Model) handleJumpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.jumping = false
		m.jumpBuf = ""
	case "enter":
		m.jumping = false
		m.commitJump()
	case "backspace":
		if len(m.jumpBuf) > 0 {
			m.jumpBuf = m.jumpBuf[:len(m.jumpBuf)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.jumpBuf += string(msg.Runes)
		}
	}
	return m, nil
}

// commitJump parses the offset input (decimal, or hex with an 0x prefix) and
// byte-focuses it. Out-of-range targets clamp to the buffer.
func (m *Model) commitJump() {
	input := strings.TrimSpace(m.jumpBuf)
	m.jumpBuf = ""
	if input == "" {
		return
	}
	target, err := strconv.ParseInt(input, 0, 64)
	if err != nil {
		m.status = fmt.Sprintf("bad offset %q", input)
		return
	}
	m.setByteFocus(clamp(int(target), 0, m.idx.Size()-1))
}

func (m *Model) handleHexKey(msg tea.KeyMsg) {
	size := m.idx.Size()
	if size == 0 {
		return
	}
	switch msg.String() {
	case "left", "h":
		m.setByteFocus(m.offset - 1)
	case "right", "l":
		m.setByteFocus(m.offset + 1)
	case "up", "k":
		m.setByteFocus(m.offset - m.columns)
	case "down", "j":
		m.setByteFocus(m.offset + m.columns)
	case "pgup":
		m.setByteFocus(m.offset - m.columns*m.paneHeight())
	case "pgdown":
		m.setByteFocus(m.offset + m.columns*m.paneHeight())
	case "g", "home":
		m.setByteFocus(0)
	case "G", "end":
		m.setByteFocus(size - 1)
	}
}

func (m *Model) handleTreeKey(msg tea.KeyMsg) {
	rows := visibleRows(m.nodes, m.collapsed)
	pos := rowIndex(rows, m.sel)
	switch msg.String() {
	case "up", "k":
		if pos > 0 {
			m.setSpanFocus(rows[pos-1])
		}
	case "down", "j":
		if pos >= 0 && pos+1 < len(rows) {
			m.setSpanFocus(rows[pos+1])
		}
	case "enter", " ":
		m.toggleCollapse()
	case "left", "h":
		if m.sel != nil && m.sel.isSpan() && !m.collapsed[m.sel.act] && len(m.sel.act.Actions) > 0 {
			m.collapsed[m.sel.act] = true
		} else if m.sel != nil && m.sel.parent != nil {
			m.setSpanFocus(m.sel.parent)
		}
	case "right", "l":
		if m.sel != nil && m.sel.isSpan() {
			delete(m.collapsed, m.sel.act)
		}
	case "g", "home":
		if len(rows) > 0 {
			m.setSpanFocus(rows[0])
		}
	case "G", "end":
		if len(rows) > 0 {
			m.setSpanFocus(rows[len(rows)-1])
		}
	}
}

func (m *Model) toggleCollapse() {
	if m.sel == nil || !m.sel.isSpan() || len(m.sel.act.Actions) == 0 {
		return
	}
	if m.collapsed[m.sel.act] {
		delete(m.collapsed, m.sel.act)
	} else {
		m.collapsed[m.sel.act] = true
	}
}

// setByteFocus moves the hex cursor, clamped to the buffer, and enters the
// byte variant. The tree highlight follows at render time via the index.
func (m *Model) setByteFocus(offset int) {
	size := m.idx.Size()
	if size == 0 {
		return
	}
	m.offset = clamp(offset, 0, size-1)
	m.focus = focusByte
	m.clampScroll()
}

// setSpanFocus selects a tree row and enters the span variant. The hex pane
// scrolls to the first byte the selection covers.
func (m *Model) setSpanFocus(n *node) {
	if n == nil {
		return
	}
	m.sel = n
	m.focus = focusSpan
	if start, ok := m.firstByteOf(n); ok {
		m.offset = start
	}
	m.clampScroll()
}

// crossPane flips the focus variant, carrying the selection across: byte to
// span lands on the action that produced the focused byte, span to byte lands
// on the selection's first covered byte.
func (m *Model) crossPane() {
	switch m.focus {
	case focusSpan:
		m.focus = focusByte
	default:
		if m.focus == focusIdle {
			m.offset = clamp(m.offset, 0, maxInt(m.idx.Size()-1, 0))
		}
		if entry, ok, err := m.idx.Lookup(m.offset); err == nil && ok {
			if n := m.nodeFor(entry.Leaf); n != nil {
				m.sel = nearestVisible(n, m.collapsed)
			}
		}
		m.focus = focusSpan
	}
	m.clampScroll()
}

// nearestVisible maps a node hidden under a collapsed span to the row that
// stands in for it, so crossing panes never disturbs collapse state.
func nearestVisible(n *node, collapsed map[*trace.Action]bool) *node {
	top := n
	for p := n.parent; p != nil; p = p.parent {
		if collapsed[p.act] {
			top = p
		}
	}
	return top
}

func (m *Model) nodeFor(act *trace.Action) *node {
	for _, n := range m.nodes {
		if n.act == act {
			return n
		}
	}
	return nil
}

// firstByteOf resolves the hex-pane landing byte for a tree row: a span's
// covered-interval start, a read's own interval start, a seek's target.
func (m *Model) firstByteOf(n *node) (int, bool) {
	switch n.act.Kind {
	case trace.KindSpan:
		if iv, ok := m.idx.SpanInterval(n.act); ok {
			return iv.Start, true
		}
	case trace.KindRead:
		for _, e := range m.idx.Entries() {
			if e.Leaf == n.act {
				return e.Interval.Start, true
			}
		}
	case trace.KindSeek:
		if n.act.Target >= 0 && n.act.Target < m.idx.Size() {
			return n.act.Target, true
		}
	}
	return 0, false
}

func (m *Model) setColumns(columns int) {
	m.columns = clamp(columns, minHexColumns, maxHexColumns)
	m.clampScroll()
}

func (m *Model) paneHeight() int {
	// Title row and status bar.
	h := m.height - 2
	if h < 1 {
		h = 1
	}
	return h
}

// clampScroll keeps the focused byte and the tree selection inside their
// viewports.
func (m *Model) clampScroll() {
	h := m.paneHeight()

	hexRow := 0
	if m.columns > 0 {
		hexRow = m.offset / m.columns
	}
	if hexRow < m.hexTop {
		m.hexTop = hexRow
	}
	if hexRow >= m.hexTop+h {
		m.hexTop = hexRow - h + 1
	}
	if m.hexTop < 0 {
		m.hexTop = 0
	}

	rows := visibleRows(m.nodes, m.collapsed)
	pos := rowIndex(rows, m.sel)
	if pos < 0 {
		pos = 0
	}
	if pos < m.treeTop {
		m.treeTop = pos
	}
	if pos >= m.treeTop+h {
		m.treeTop = pos - h + 1
	}
	if m.treeTop < 0 {
		m.treeTop = 0
	}
}

// rowIndex finds sel among the visible rows, walking up to the nearest
// visible ancestor when a collapse hid the selection.
func rowIndex(rows []*node, sel *node) int {
	for sel != nil {
		for i, n := range rows {
			if n == sel {
				return i
			}
		}
		sel = sel.parent
	}
	return -1
}

// focusPath is the span-name chain the tree pane highlights, resolved from
// whichever variant holds the focus.
func (m *Model) focusPath() []string {
	switch m.focus {
	case focusByte:
		if entry, ok, err := m.idx.Lookup(m.offset); err == nil && ok {
			return entry.Path
		}
	case focusSpan:
		if m.sel != nil {
			var path []string
			for p := m.sel; p != nil; p = p.parent {
				if p.isSpan() {
					path = append([]string{p.act.Name}, path...)
				}
			}
			return path
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
