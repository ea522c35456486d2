package control

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/simhost/internal/dynamo"
)

var ErrTableShape = errors.New("control: table shape mismatch")

// Axis describes one grid dimension. A periodic axis treats Max as Min and
// spaces Points samples over [Min, Max); other axes place the first and last
// sample on Min and Max and clamp queries outside the range.
type Axis struct {
	Min      float64
	Max      float64
	Points   int
	Periodic bool
}

func (a Axis) step() float64 {
	if a.Periodic {
		return (a.Max - a.Min) / float64(a.Points)
	}
	return (a.Max - a.Min) / float64(a.Points-1)
}

// At returns the coordinate of the i-th sample.
func (a Axis) At(i int) float64 {
	return a.Min + float64(i)*a.step()
}

// bracket returns the two sample indices around v and the interpolation
// weight of the upper one.
func (a Axis) bracket(v float64) (lo, hi int, frac float64) {
	if a.Periodic {
		v = dynamo.Wrap(v, a.Min, a.Max)
		q := (v - a.Min) / a.step()
		lo = int(math.Floor(q))
		frac = q - float64(lo)
		lo %= a.Points
		return lo, (lo + 1) % a.Points, frac
	}
	v = dynamo.Clamp(v, a.Min, a.Max)
	q := (v - a.Min) / a.step()
	lo = int(math.Floor(q))
	if lo > a.Points-2 {
		lo = a.Points - 2
	}
	return lo, lo + 1, q - float64(lo)
}

// Table is an immutable tabulated policy. Values are stored row-major with
// the last axis varying fastest. Lookup is safe for concurrent use.
type Table struct {
	axes    []Axis
	strides []int
	values  []float64
}

func NewTable(axes []Axis, values []float64) (*Table, error) {
	strides, size, err := layout(axes)
	if err != nil {
		return nil, err
	}
	if len(values) != size {
		return nil, fmt.Errorf("%w: %d values for %d grid points", ErrTableShape, len(values), size)
	}
	ax := make([]Axis, len(axes))
	copy(ax, axes)
	v := make([]float64, len(values))
	copy(v, values)
	return &Table{axes: ax, strides: strides, values: v}, nil
}

func layout(axes []Axis) (strides []int, size int, err error) {
	if len(axes) == 0 {
		return nil, 0, fmt.Errorf("%w: no axes", ErrTableShape)
	}
	strides = make([]int, len(axes))
	size = 1
	for i := len(axes) - 1; i >= 0; i-- {
		a := axes[i]
		if a.Points < 1 || (!a.Periodic && a.Points < 2) || !(a.Max > a.Min) {
			return nil, 0, fmt.Errorf("%w: axis %d %+v", ErrTableShape, i, a)
		}
		strides[i] = size
		size *= a.Points
	}
	return strides, size, nil
}

// Tabulate samples fn on every grid point.
func Tabulate(axes []Axis, fn func(x dynamo.State) float64) (*Table, error) {
	_, size, err := layout(axes)
	if err != nil {
		return nil, err
	}
	values := make([]float64, size)
	idx := make([]int, len(axes))
	x := make(dynamo.State, len(axes))
	for n := range values {
		for i, a := range axes {
			x[i] = a.At(idx[i])
		}
		values[n] = fn(x)
		for i := len(axes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < axes[i].Points {
				break
			}
			idx[i] = 0
		}
	}
	return NewTable(axes, values)
}

func (t *Table) Dim() int { return len(t.axes) }

func (t *Table) Axes() []Axis {
	out := make([]Axis, len(t.axes))
	copy(out, t.axes)
	return out
}

// Lookup interpolates the table at x. Components beyond the table's
// dimension are ignored; missing ones read as zero.
func (t *Table) Lookup(x dynamo.State) float64 {
	n := len(t.axes)
	lo := make([]int, n)
	hi := make([]int, n)
	frac := make([]float64, n)
	for i, a := range t.axes {
		v := 0.0
		if i < len(x) {
			v = x[i]
		}
		lo[i], hi[i], frac[i] = a.bracket(v)
	}

	sum := 0.0
	for corner := 0; corner < 1<<n; corner++ {
		w := 1.0
		off := 0
		for i := 0; i < n; i++ {
			if corner&(1<<i) != 0 {
				w *= frac[i]
				off += hi[i] * t.strides[i]
			} else {
				w *= 1 - frac[i]
				off += lo[i] * t.strides[i]
			}
		}
		if w != 0 {
			sum += w * t.values[off]
		}
	}
	return sum
}
