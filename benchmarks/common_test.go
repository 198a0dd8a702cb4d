// Package benchmarks compares flow-engine against other Go stream and
// collection libraries.
package benchmarks

import (
	"context"
)

const (
	SmallSize  = 100
	MediumSize = 1_000
	LargeSize  = 10_000
)

var sizes = []struct {
	name string
	n    int
}{
	{"small", SmallSize},
	{"medium", MediumSize},
	{"large", LargeSize},
}

func generateInts(n int) []int {
	data := make([]int, n)
	for i := range data {
		data[i] = i
	}
	return data
}

func squareWithErr(x int) (int, error) { return x * x, nil }
func square(x int) int                 { return x * x }
func isEven(x int) bool                { return x%2 == 0 }
func add(a, b int) int                 { return a + b }

var ctx = context.Background()
