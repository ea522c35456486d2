// Package export renders recorded runs into standalone files.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// PhasePortrait selects two columns of a recording to plot against each other.
type PhasePortrait struct {
	XCol, YCol    int
	Width, Height int
	Stroke        string
	Title         string
}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func (b bounds) pad() bounds {
	rx := b.maxX - b.minX
	ry := b.maxY - b.minY
	if rx == 0 {
		rx = 1
	}
	if ry == 0 {
		ry = 1
	}
	return bounds{
		minX: b.minX - rx*0.1, maxX: b.maxX + rx*0.1,
		minY: b.minY - ry*0.1, maxY: b.maxY + ry*0.1,
	}
}

// WriteSVG draws the path through rows[i][XCol], rows[i][YCol]. Rows missing
// either column or holding non-finite values are skipped.
func (p PhasePortrait) WriteSVG(w io.Writer, rows [][]float64) error {
	if p.Width <= 0 {
		p.Width = 640
	}
	if p.Height <= 0 {
		p.Height = 480
	}
	if p.Stroke == "" {
		p.Stroke = "#00ff88"
	}

	type point struct{ x, y float64 }
	pts := make([]point, 0, len(rows))
	for _, row := range rows {
		if p.XCol >= len(row) || p.YCol >= len(row) {
			continue
		}
		x, y := row[p.XCol], row[p.YCol]
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		pts = append(pts, point{x, y})
	}
	if len(pts) < 2 {
		return fmt.Errorf("export: need at least 2 points, have %d", len(pts))
	}

	b := bounds{pts[0].x, pts[0].x, pts[0].y, pts[0].y}
	for _, pt := range pts {
		b.minX = math.Min(b.minX, pt.x)
		b.maxX = math.Max(b.maxX, pt.x)
		b.minY = math.Min(b.minY, pt.y)
		b.maxY = math.Max(b.maxY, pt.y)
	}
	b = b.pad()
	rx, ry := b.maxX-b.minX, b.maxY-b.minY

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, p.Width, p.Height, p.Width, p.Height)
	if p.Title != "" {
		fmt.Fprintf(&sb, `<text x="8" y="18" fill="#888888" font-family="monospace" font-size="12">%s</text>
`, escape(p.Title))
	}
	fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, p.Stroke)
	for i, pt := range pts {
		x := (pt.x - b.minX) / rx * float64(p.Width)
		y := float64(p.Height) - (pt.y-b.minY)/ry*float64(p.Height)
		if i > 0 {
			sb.WriteString(" L")
		}
		fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
	}
	sb.WriteString(`"/>
</svg>
`)
	_, err := io.WriteString(w, sb.String())
	return err
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return escaper.Replace(s) }
