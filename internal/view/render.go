package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hexprov/hexprov/internal/index"
	"github.com/hexprov/hexprov/internal/trace"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cursorStyle    = lipgloss.NewStyle().Reverse(true).Bold(true)
	rangeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	untouchedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	selectedStyle  = lipgloss.NewStyle().Reverse(true)
	pathStyle      = lipgloss.NewStyle().Underline(true)
	statusStyle    = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	paneStyle      = lipgloss.NewStyle().PaddingRight(2)
)

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	title := titleStyle.Render(fmt.Sprintf("hexprov  %d bytes  coverage %.0f%%", m.idx.Size(), m.coverage*100))
	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		paneStyle.Render(m.renderHexPane()),
		m.renderTreePane(),
	)
	return title + "\n" + body + "\n" + m.renderStatus()
}

func (m *Model) renderHexPane() string {
	data := m.trc.Data
	h := m.paneHeight()
	highlight, hasHighlight := m.highlightInterval()

	var b strings.Builder
	for row := m.hexTop; row < m.hexTop+h; row++ {
		start := row * m.columns
		if start >= len(data) && row > m.hexTop {
			break
		}
		if row > m.hexTop {
			b.WriteByte('\n')
		}
		b.WriteString(fmt.Sprintf("%08x  ", start))

		end := start + m.columns
		if end > len(data) {
			end = len(data)
		}
		for i := start; i < start+m.columns; i++ {
			if i >= len(data) {
				b.WriteString("   ")
				continue
			}
			cell := fmt.Sprintf("%02x", data[i])
			b.WriteString(m.styleCell(i, cell, highlight, hasHighlight))
			b.WriteByte(' ')
		}

		b.WriteByte(' ')
		for i := start; i < end; i++ {
			b.WriteString(m.styleCell(i, printable(data[i]), highlight, hasHighlight))
		}
	}
	return b.String()
}

func (m *Model) styleCell(offset int, cell string, highlight index.Interval, hasHighlight bool) string {
	switch {
	case m.focus != focusIdle && offset == m.offset:
		return cursorStyle.Render(cell)
	case hasHighlight && highlight.Contains(offset):
		return rangeStyle.Render(cell)
	case !m.touched(offset):
		return untouchedStyle.Render(cell)
	}
	return cell
}

// highlightInterval is the byte range tinted in the hex pane: the focused
// selection's coverage in span focus, the enclosing read in byte focus.
func (m *Model) highlightInterval() (index.Interval, bool) {
	switch m.focus {
	case focusSpan:
		if m.sel == nil {
			return index.Interval{}, false
		}
		switch m.sel.act.Kind {
		case trace.KindSpan:
			return m.idx.SpanInterval(m.sel.act)
		case trace.KindRead:
			for _, e := range m.idx.Entries() {
				if e.Leaf == m.sel.act {
					return e.Interval, true
				}
			}
		}
	case focusByte:
		if entry, ok, err := m.idx.Lookup(m.offset); err == nil && ok {
			return entry.Interval, true
		}
	}
	return index.Interval{}, false
}

func (m *Model) touched(offset int) bool {
	_, ok, err := m.idx.Lookup(offset)
	return err == nil && ok
}

func printable(b byte) string {
	if b >= 0x20 && b < 0x7F {
		return string(rune(b))
	}
	return "."
}

func (m *Model) renderTreePane() string {
	rows := visibleRows(m.nodes, m.collapsed)
	h := m.paneHeight()
	path := m.focusPath()

	var b strings.Builder
	for i := m.treeTop; i < m.treeTop+h && i < len(rows); i++ {
		if i > m.treeTop {
			b.WriteByte('\n')
		}
		b.WriteString(m.renderTreeRow(rows[i], path))
	}
	return b.String()
}

func (m *Model) renderTreeRow(n *node, highlightPath []string) string {
	marker := "  "
	if n.isSpan() && len(n.act.Actions) > 0 {
		if m.collapsed[n.act] {
			marker = "+ "
		} else {
			marker = "- "
		}
	}
	line := strings.Repeat("  ", n.depth) + marker + n.label()

	switch {
	case m.focus == focusSpan && n == m.sel:
		return selectedStyle.Render(line)
	case m.focus == focusByte && n.isSpan() && onPath(n, highlightPath):
		return pathStyle.Render(line)
	}
	return line
}

// onPath reports whether the span row sits on the highlighted ancestor chain.
func onPath(n *node, path []string) bool {
	if len(path) == 0 {
		return false
	}
	var chain []string
	for p := n; p != nil; p = p.parent {
		if p.isSpan() {
			chain = append([]string{p.act.Name}, chain...)
		}
	}
	if len(chain) > len(path) {
		return false
	}
	for i, name := range chain {
		if path[i] != name {
			return false
		}
	}
	return true
}

func (m *Model) renderStatus() string {
	if m.jumping {
		return statusStyle.Render("goto offset: " + m.jumpBuf)
	}

	var parts []string
	switch m.focus {
	case focusByte:
		parts = append(parts, fmt.Sprintf("byte 0x%X (%d)", m.offset, m.offset))
	case focusSpan:
		if m.sel != nil {
			parts = append(parts, "span "+m.sel.label())
		}
	default:
		parts = append(parts, "no selection")
	}
	if path := m.focusPath(); len(path) > 0 {
		parts = append(parts, strings.Join(path, "/"))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, fmt.Sprintf("cols %d", m.columns))
	parts = append(parts, "tab:pane  o:goto  +/-:cols  q:quit")
	return statusStyle.Render(strings.Join(parts, "  |  "))
}
