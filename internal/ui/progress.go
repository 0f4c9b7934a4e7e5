package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/Nomadcxx/jellysort/internal/database"
)

// ProgressBar redraws a single line with done/total counts.
type ProgressBar struct {
	out   io.Writer
	label string
	width int
	last  string
}

func NewProgressBar(out io.Writer, label string) *ProgressBar {
	return &ProgressBar{out: out, label: label, width: 30}
}

// Update redraws the bar from job counters. Identical frames are not
// redrawn, so polling callers may call it freely.
func (p *ProgressBar) Update(c database.Counters) {
	done := c.Success + c.Failed + c.Skipped
	frame := p.frame(done, c.Total)
	if frame == p.last {
		return
	}
	p.last = frame
	if IsTerminal() {
		fmt.Fprint(p.out, "\r"+frame)
	} else {
		fmt.Fprintln(p.out, frame)
	}
}

// Finish ends the line.
func (p *ProgressBar) Finish() {
	if IsTerminal() && p.last != "" {
		fmt.Fprintln(p.out)
	}
}

func (p *ProgressBar) frame(done, total int) string {
	if total <= 0 {
		return fmt.Sprintf("%s: scanning", p.label)
	}
	if done > total {
		done = total
	}
	percent := float64(done) / float64(total) * 100
	if !IsTerminal() {
		return fmt.Sprintf("%s: %d/%d (%.1f%%)", p.label, done, total, percent)
	}
	filled := p.width * done / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	return fmt.Sprintf("%s [%s] %d/%d (%.1f%%)", p.label, bar, done, total, percent)
}
