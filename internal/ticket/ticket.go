package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

const (
	Rows      = 9
	Cols      = 9
	PerRow    = 5
	MaxNumber = 90

	maxAttempts = 100
)

var ErrMalformed = errors.New("malformed ticket")

// Ticket is a 9x9 card. A zero cell is empty.
type Ticket [Rows][Cols]int

// columnRanges holds the inclusive number range of each column. The last
// column carries 80-90, eleven values.
var columnRanges = [Cols][2]int{
	{1, 9},
	{10, 19},
	{20, 29},
	{30, 39},
	{40, 49},
	{50, 59},
	{60, 69},
	{70, 79},
	{80, 90},
}

func ColumnRange(col int) (lo, hi int) {
	r := columnRanges[col]
	return r[0], r[1]
}

func columnSize(col int) int {
	lo, hi := ColumnRange(col)
	return hi - lo + 1
}

// Row returns the non-empty cells of row i, left to right. Out of range
// rows are empty.
func (t Ticket) Row(i int) []int {
	if i < 0 || i >= Rows {
		return nil
	}
	out := make([]int, 0, PerRow)
	for _, n := range t[i] {
		if n != 0 {
			out = append(out, n)
		}
	}
	return out
}

func (t Ticket) Contains(n int) bool {
	for row := range Rows {
		if slices.Contains(t[row][:], n) {
			return true
		}
	}
	return false
}

// Validate checks the structural rules: five numbers per row, every number
// inside its column range, no repeats.
func (t Ticket) Validate() error {
	seen := make(map[int]bool, Rows*PerRow)
	var counts [Cols]int
	for row := range Rows {
		filled := 0
		for col, n := range t[row] {
			if n == 0 {
				continue
			}
			filled++
			counts[col]++
			lo, hi := ColumnRange(col)
			if n < lo || n > hi {
				return fmt.Errorf("%w: %d outside column %d range %d-%d", ErrMalformed, n, col, lo, hi)
			}
			if seen[n] {
				return fmt.Errorf("%w: %d repeated", ErrMalformed, n)
			}
			seen[n] = true
		}
		if filled != PerRow {
			return fmt.Errorf("%w: row %d has %d numbers", ErrMalformed, row, filled)
		}
	}
	for col, c := range counts {
		if c > columnSize(col) {
			return fmt.Errorf("%w: column %d over capacity", ErrMalformed, col)
		}
	}
	return nil
}

// MarshalJSON renders empty cells as null, which is what the clients draw
// as blank squares.
func (t Ticket) MarshalJSON() ([]byte, error) {
	grid := make([][]*int, Rows)
	for row := range Rows {
		grid[row] = make([]*int, Cols)
		for col := range Cols {
			if n := t[row][col]; n != 0 {
				grid[row][col] = &n
			}
		}
	}
	return json.Marshal(grid)
}

func (t *Ticket) UnmarshalJSON(data []byte) error {
	var grid [][]*int
	if err := json.Unmarshal(data, &grid); err != nil {
		return err
	}
	if len(grid) != Rows {
		return fmt.Errorf("%w: %d rows", ErrMalformed, len(grid))
	}
	var out Ticket
	for row, cells := range grid {
		if len(cells) != Cols {
			return fmt.Errorf("%w: row %d has %d columns", ErrMalformed, row, len(cells))
		}
		for col, n := range cells {
			if n != nil {
				out[row][col] = *n
			}
		}
	}
	*t = out
	return nil
}

type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator drawing from rng. A nil rng gets a
// randomly seeded source. A Generator is not safe for concurrent use.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rng: rng}
}

func (g *Generator) Generate() Ticket {
	for range maxAttempts {
		if t, ok := g.build(); ok {
			return t
		}
	}
	return g.fallback()
}

// build reserves five columns per row, then fills each column with sorted
// draws from its range. Every column holds at least nine numbers and there
// are nine rows, so a column only reaches capacity on the last row and the
// reservation step cannot run short on a 9x9 board.
func (g *Generator) build() (Ticket, bool) {
	var (
		t        Ticket
		reserved [Rows][Cols]bool
		counts   [Cols]int
	)

	for row := range Rows {
		available := make([]int, 0, Cols)
		for col := range Cols {
			if counts[col] < columnSize(col) {
				available = append(available, col)
			}
		}
		if len(available) < PerRow {
			return Ticket{}, false
		}
		g.rng.Shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
		for _, col := range available[:PerRow] {
			reserved[row][col] = true
			counts[col]++
		}
	}

	for col := range Cols {
		if counts[col] == 0 {
			continue
		}
		values := g.pool(col)[:counts[col]]
		slices.Sort(values)
		i := 0
		for row := range Rows {
			if reserved[row][col] {
				t[row][col] = values[i]
				i++
			}
		}
	}
	return t, true
}

// fallback only guarantees five cells per row, one per chosen column, each
// inside its range. Columns are not sorted.
func (g *Generator) fallback() Ticket {
	var t Ticket
	var pools [Cols][]int
	for col := range Cols {
		pools[col] = g.pool(col)
	}
	for row := range Rows {
		for _, col := range g.rng.Perm(Cols)[:PerRow] {
			t[row][col] = pools[col][0]
			pools[col] = pools[col][1:]
		}
	}
	return t
}

// pool returns the column's numbers in random order.
func (g *Generator) pool(col int) []int {
	lo, hi := ColumnRange(col)
	values := make([]int, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		values = append(values, n)
	}
	g.rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
	return values
}
