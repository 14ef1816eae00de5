package ui

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/idilsaglam/board/internal/model"
)

var ansiRegexp = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string { return ansiRegexp.ReplaceAllString(s, "") }

func visibleWidth(s string) int { return utf8.RuneCountInString(stripANSI(s)) }

// ProgressBar renders a Unicode progress bar with percentage.
func ProgressBar(done, total, width int) string {
	if total <= 0 {
		total = 1
	}
	if width < 5 {
		width = 5
	}
	filled := int(float64(done) / float64(total) * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	pct := int(float64(done) / float64(total) * 100)
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

// Panel draws a framed box using the current theme.
func Panel(w io.Writer, lines []string) {
	t := Current()
	maxw := 0
	for _, ln := range lines {
		if n := visibleWidth(ln); n > maxw {
			maxw = n
		}
	}
	fmt.Fprintln(w, t.CornerTL+strings.Repeat(t.H, maxw+2)+t.CornerTR)
	for _, ln := range lines {
		fmt.Fprintln(w, t.V+" "+ln+strings.Repeat(" ", maxw-visibleWidth(ln))+" "+t.V)
	}
	fmt.Fprintln(w, t.CornerBL+strings.Repeat(t.H, maxw+2)+t.CornerBR)
}

// BoardLines renders every section with its progress and 1-based item
// addresses in the form section.item, as accepted by the CLI.
func BoardLines(doc model.Document, title string) []string {
	t := Current()
	var done, pending int
	for _, s := range doc.Sections {
		d, p := s.Counts()
		done += d
		pending += p
	}
	lines := []string{
		fmt.Sprintf("%s  %s %d  %s %d  %s %d",
			C(t.Title, title),
			C(t.Success, t.SymDone), done,
			C(t.Pending, t.SymPending), pending,
			C(t.Accent, "Sections"), len(doc.Sections),
		),
		C(t.Muted, ProgressBar(done, done+pending, 28)),
	}
	if len(doc.Sections) == 0 {
		return append(lines, "", C(t.Muted, "no sections"))
	}
	for si, s := range doc.Sections {
		d, p := s.Counts()
		lines = append(lines, "",
			fmt.Sprintf("%s %s %s", Dim(fmt.Sprintf("%d.", si+1)), C(t.Accent, s.Title), C(t.Muted, fmt.Sprintf("(%d/%d)", d, d+p))))
		if len(s.Items) == 0 {
			lines = append(lines, "   "+C(t.Muted, "no items"))
			continue
		}
		for ii, it := range s.Items {
			box, color := t.BoxUnchecked, t.Muted
			if it.Completed {
				box, color = t.BoxChecked, t.Success
			}
			text := it.Text
			if utf8.RuneCountInString(text) > 80 {
				text = string([]rune(text)[:77]) + "..."
			}
			lines = append(lines, fmt.Sprintf("   %s %s %s", Dim(fmt.Sprintf("%d.%d", si+1, ii+1)), C(color, box), text))
		}
	}
	return lines
}
