package dataset

import (
	"errors"
	"hash/fnv"
	"math"
	"math/rand"
)

// ErrEmptyDataset indicates the dataset holds no rows to sample from.
var ErrEmptyDataset = errors.New("dataset has no rows")

// Sampler draws monotonically growing samples from a table: every sample
// contains all rows of every smaller sample plus new rows, never fewer. The
// row order is a permutation seeded by the dataset path and size, so repeated
// runs over the same dataset draw identical samples.
type Sampler struct {
	table       *Table
	permutation []int
}

// NewSampler builds a sampler over the table.
func NewSampler(table *Table) *Sampler {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(table.Path))

	seed := int64(hasher.Sum64()) + int64(table.RowCount())

	permutation := rand.New(rand.NewSource(seed)).Perm(table.RowCount())

	return &Sampler{table: table, permutation: permutation}
}

// Sample is one drawn subset of the table's rows.
type Sample struct {
	Table    *Table
	Indices  []int
	Fraction float64
}

// Size returns the number of rows in the sample.
func (s *Sample) Size() int {
	return len(s.Indices)
}

// Column returns the sampled values of the column at the given index.
func (s *Sample) Column(index int) []string {
	values := make([]string, len(s.Indices))
	for i, rowIdx := range s.Indices {
		values[i] = s.Table.Rows[rowIdx][index]
	}

	return values
}

// At draws the sample covering the given fraction of the table's rows, with a
// minimum of one row. Fractions at or above 1.0 return every row.
func (sp *Sampler) At(fraction float64) *Sample {
	total := sp.table.RowCount()

	size := int(math.Round(fraction * float64(total)))
	if size < 1 {
		size = 1
	}

	if size > total {
		size = total
	}

	indices := append([]int(nil), sp.permutation[:size]...)

	return &Sample{Table: sp.table, Indices: indices, Fraction: fraction}
}
