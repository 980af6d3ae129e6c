package tps

import (
	"fmt"
	"math"
)

// pivotTolerance is relative to the largest absolute matrix entry.
// Inputs are normalized before the system is built, so entries stay O(1)
// and genuine pivots are far above this.
const pivotTolerance = 1e-12

// solve runs Gaussian elimination with partial pivoting on a·x = b for every
// right-hand side column in rhs. a and rhs are not modified.
func solve(a [][]float64, rhs ...[]float64) ([][]float64, error) {
	n := len(a)
	k := len(rhs)

	// augmented matrix [a | rhs...]
	m := make([][]float64, n)
	largest := 0.0
	for i := range a {
		if len(a[i]) != n {
			return nil, fmt.Errorf("tps: matrix row %d has %d columns, want %d", i, len(a[i]), n)
		}
		row := make([]float64, n+k)
		copy(row, a[i])
		for j, b := range rhs {
			if len(b) != n {
				return nil, fmt.Errorf("tps: right-hand side %d has %d rows, want %d", j, len(b), n)
			}
			row[n+j] = b[i]
		}
		for _, v := range a[i] {
			largest = max(largest, math.Abs(v))
		}
		m[i] = row
	}

	tol := largest * pivotTolerance

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}

		if p := math.Abs(m[pivot][col]); p == 0 || p <= tol || math.IsNaN(p) {
			return nil, fmt.Errorf("%w: zero pivot in column %d", ErrSingular, col)
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < n+k; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	out := make([][]float64, k)
	for j := range out {
		x := make([]float64, n)
		for i := n - 1; i >= 0; i-- {
			sum := m[i][n+j]
			for c := i + 1; c < n; c++ {
				sum -= m[i][c] * x[c]
			}
			x[i] = sum / m[i][i]
		}
		out[j] = x
	}

	return out, nil
}
