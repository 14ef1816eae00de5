package tui

import (
	"fmt"
	"strings"

	"github.com/idilsaglam/board/internal/ui"
)

func (m Model) View() string {
	t := ui.Current()
	st := m.styles

	var done, pending int
	for _, s := range m.doc.Sections {
		d, p := s.Counts()
		done += d
		pending += p
	}
	header := fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		st.Title.Render(m.opts.Title),
		st.Success.Render(t.SymDone), done,
		st.Pending.Render(t.SymPending), pending,
		st.Accent.Render("Sections"), len(m.doc.Sections),
	)

	var b strings.Builder
	b.WriteString(header + "\n\n")

	switch {
	case m.loading:
		b.WriteString(st.Muted.Render("loading…") + "\n")
	case len(m.rows) == 0:
		b.WriteString(st.Muted.Render("no sections yet, press A to add one") + "\n")
	default:
		for _, line := range m.visibleRows() {
			b.WriteString(line + "\n")
		}
	}

	if m.mode != browsing {
		title := map[mode]string{
			addingItem:      "Add item",
			editingItem:     "Edit item",
			renamingSection: "Rename section",
		}[m.mode]
		b.WriteString(st.InputFrame.Render(title+"\n"+m.input.View()) + "\n")
	}

	if m.status != "" {
		style := st.Muted
		if m.statusErr {
			style = st.Status
		}
		b.WriteString(style.Render(m.status) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return st.Frame.Render(b.String())
}

// visibleRows renders the rows that fit, keeping the cursor in view.
func (m Model) visibleRows() []string {
	room := m.height - 8
	if m.mode != browsing {
		room -= 4
	}
	if m.help.ShowAll {
		room -= 3
	}
	if room < 3 {
		room = 3
	}
	start := 0
	if m.cursor >= room {
		start = m.cursor - room + 1
	}
	end := start + room
	if end > len(m.rows) {
		end = len(m.rows)
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, m.renderRow(i))
	}
	return lines
}

func (m Model) renderRow(i int) string {
	t := ui.Current()
	st := m.styles
	r := m.rows[i]

	prefix := "  "
	if i == m.cursor {
		prefix = st.Selected.Render(">") + " "
	}

	sec := m.doc.Sections[r.section]
	if r.isHeader() {
		d, p := sec.Counts()
		return prefix + st.Section.Render(sec.Title) + " " +
			st.Muted.Render(fmt.Sprintf("%d/%d", d, d+p))
	}
	it := sec.Items[r.item]
	if it.Completed {
		return prefix + "  " + st.Success.Render(t.BoxChecked) + " " + st.Done.Render(it.Text)
	}
	return prefix + "  " + st.Muted.Render(t.BoxUnchecked) + " " + it.Text
}
