// Package flex implements broadcast-aware per-cell lookup into 0-, 1- or
// 2-dimensional parameter arrays, so callers never have to materialize a
// full (bars x cols) tensor for a scalar or per-column fee rate.
package flex

// Array is a small broadcast-aware wrapper around a parameter that may be
// a scalar, a row vector, a column vector, or a full 2-D matrix. It is a
// value type: Get must be pure and branch-predictable since it runs once
// per cell in the simulation hot loop.
type Array struct {
	data []float64
	rows int
	cols int
}

// Scalar wraps a single value broadcast to every cell.
func Scalar(v float64) Array {
	return Array{data: []float64{v}, rows: 1, cols: 1}
}

// PerColumn wraps a 1xC row vector: one value per column, broadcast
// across all rows.
func PerColumn(values []float64) Array {
	return Array{data: values, rows: 1, cols: len(values)}
}

// PerRow wraps an Rx1 column vector: one value per row, broadcast across
// all columns. Only meaningful when the caller passes flex2D=true to Get.
func PerRow(values []float64) Array {
	return Array{data: values, rows: len(values), cols: 1}
}

// Full wraps a complete (rows x cols) matrix stored row-major.
func Full(values []float64, rows, cols int) Array {
	return Array{data: values, rows: rows, cols: cols}
}

// Len reports how many scalars back this array (1 for Scalar/PerColumn
// with one column, etc.) — used by callers validating shapes.
func (a Array) Len() int {
	return len(a.data)
}

// Get resolves the value for bar i, column col. Indexing reduces to the
// last axis available:
//   - rows==1, cols==1: scalar, broadcast everywhere.
//   - rows==1, cols>1: per-column vector, indexed by col.
//   - rows>1, cols==1: per-row vector IF flex2D is true (index by i);
//     otherwise treated as a per-column vector of length rows (index by
//     col, per spec.md §4.1's "(R,) interpreted as per-column when
//     flex2D=false").
//   - rows>1, cols>1: full matrix, indexed by (i, col).
func (a Array) Get(i, col int, flex2D bool) float64 {
	switch {
	case a.rows == 1 && a.cols == 1:
		return a.data[0]
	case a.rows == 1:
		return a.data[col%a.cols]
	case a.cols == 1:
		if flex2D {
			return a.data[i%a.rows]
		}
		return a.data[col%a.rows]
	default:
		return a.data[i*a.cols+col]
	}
}
