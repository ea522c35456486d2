package tui

import (
	"math"
	"strings"

	"github.com/san-kum/simhost/internal/dynamo"
)

type canvas struct {
	w, h  int
	cells [][]rune
}

func newCanvas(w, h int) *canvas {
	cells := make([][]rune, h)
	for i := range cells {
		cells[i] = []rune(strings.Repeat(" ", w))
	}
	return &canvas{w: w, h: h, cells: cells}
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) at(x, y int) rune {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		return c.cells[y][x]
	}
	return 0
}

func (c *canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := intAbs(x2 - x1)
	dy := intAbs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (c *canvas) String() string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString("   ")
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Angles follow the plant convention: θ=0 hangs down, θ=π is upright. Screen
// rows grow downward, so the tip sits at (sin θ, cos θ) from the pivot.

// cart-pole state: [x, θ, ẋ, θ̇]
func drawCartPole(c *canvas, x dynamo.State) (cartX, tipX, tipY int) {
	if len(x) < 4 {
		return
	}
	pos, theta := x[0], x[1]
	gy := c.h - 3
	cartX = c.w/2 + int(math.Round(pos*10))
	cartX = max(5, min(c.w-5, cartX))

	for i := 2; i < c.w-2; i++ {
		c.set(i, gy+1, '═')
	}
	for dx := -3; dx <= 3; dx++ {
		c.set(cartX+dx, gy, '█')
	}
	c.set(cartX-4, gy+1, '○')
	c.set(cartX+4, gy+1, '○')

	plen := float64(c.h) * 0.55
	tipX = cartX + int(math.Round(2*plen*math.Sin(theta)))
	tipY = gy - 1 + int(math.Round(plen*math.Cos(theta)))
	c.line(cartX, gy-1, tipX, tipY, '│')
	c.set(tipX, tipY, '⬤')
	return
}

// pendulum state: [θ, θ̇]
func drawPendulum(c *canvas, x dynamo.State, trail []float64) (bobX, bobY int) {
	if len(x) < 2 {
		return
	}
	px, py := c.w/2, c.h/2
	length := float64(c.h) * 0.45
	pos := func(theta float64) (int, int) {
		return px + int(math.Round(2*length*math.Sin(theta))), py + int(math.Round(length*math.Cos(theta)))
	}

	for i, theta := range trail {
		tx, ty := pos(theta)
		if i < len(trail)/2 {
			c.set(tx, ty, '·')
		} else {
			c.set(tx, ty, '∘')
		}
	}

	bobX, bobY = pos(x[0])
	c.line(px, py, bobX, bobY, '│')
	c.set(px, py, '▼')
	c.set(bobX, bobY, '⬤')
	return
}

func drawBars(c *canvas, x dynamo.State) {
	cy := c.h / 2
	for i := 2; i < c.w-2; i++ {
		c.set(i, cy, '─')
	}
	if len(x) == 0 {
		return
	}
	maxVal := 1.0
	for _, v := range x {
		maxVal = math.Max(maxVal, math.Abs(v))
	}
	bw := max(4, (c.w-8)/len(x))
	for i, v := range x {
		bx := 4 + i*bw
		bh := int((v / maxVal) * float64(c.h/3))
		if bh > 0 {
			for y := cy - 1; y >= cy-bh && y >= 1; y-- {
				c.set(bx, y, '█')
			}
		} else {
			for y := cy + 1; y <= cy-bh && y < c.h-1; y++ {
				c.set(bx, y, '█')
			}
		}
	}
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := max(1, len(data)/width)
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / rang * 7)
		sb.WriteRune(chars[max(0, min(7, idx))])
	}
	return sb.String()
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
