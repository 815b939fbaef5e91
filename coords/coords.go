package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF affine transform [a b c d e f], row-vector convention:
// x' = a*x + c*y + e, y' = b*x + d*y + f.
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m × o, the transform that applies m first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

func Rotate(angle float64) Matrix {
	c := math.Cos(angle)
	s := math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// UnitSquare holds the four corners of the unit square [0,1]² mapped
// through a transform: lower-left, upper-left, upper-right, lower-right.
type UnitSquare struct {
	LL, UL, UR, LR Point
}

// MapUnitSquare transforms the unit square corners through m. Image
// space places the unit square so that its transform under the CTM is
// the painted area of an image XObject.
func (m Matrix) MapUnitSquare() UnitSquare {
	return UnitSquare{
		LL: m.Transform(Point{0, 0}),
		UL: m.Transform(Point{0, 1}),
		UR: m.Transform(Point{1, 1}),
		LR: m.Transform(Point{1, 0}),
	}
}
