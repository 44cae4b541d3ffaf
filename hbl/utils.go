package hbl

import (
	"gonum.org/v1/gonum/mat"
)

//HandleError panics on a non-nil error. Used for conditions that indicate a
//programming error rather than bad caller input.
func HandleError(err error) {
	if err != nil {
		panic(err)
	}
}

//Height returns the number of rows of a dense matrix.
func Height(m *mat.Dense) int {
	h, _ := m.Dims()
	return h
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
