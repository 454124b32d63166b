package ticket

import (
	"encoding/json"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) *Generator {
	return NewGenerator(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func TestGenerate_StructurallyValid(t *testing.T) {
	g := seeded(1)
	for i := 0; i < 2000; i++ {
		tk := g.Generate()
		require.NoError(t, tk.Validate(), "ticket %d: %v", i, tk)
	}
}

func TestGenerate_ColumnsSortedTopToBottom(t *testing.T) {
	g := seeded(7)
	for i := 0; i < 200; i++ {
		tk := g.Generate()
		for col := range Cols {
			var column []int
			for row := range Rows {
				if n := tk[row][col]; n != 0 {
					column = append(column, n)
				}
			}
			assert.True(t, slices.IsSorted(column), "column %d not sorted: %v", col, column)
		}
	}
}

func TestBuild_NeverRunsShort(t *testing.T) {
	g := seeded(42)
	for i := 0; i < 5000; i++ {
		_, ok := g.build()
		require.True(t, ok)
	}
}

func TestFallback_StructurallyValid(t *testing.T) {
	g := seeded(3)
	for i := 0; i < 500; i++ {
		tk := g.fallback()
		for row := range Rows {
			assert.Len(t, tk.Row(row), PerRow)
		}
		require.NoError(t, tk.Validate())
	}
}

func TestValidate_RejectsBrokenTickets(t *testing.T) {
	good := seeded(9).Generate()

	cases := []struct {
		name   string
		mutate func(tk *Ticket)
	}{
		{
			name: "out of column range",
			mutate: func(tk *Ticket) {
				for col, n := range tk[0] {
					if n != 0 {
						lo, hi := ColumnRange((col + 1) % Cols)
						tk[0][col] = lo + (hi-lo)/2
						return
					}
				}
			},
		},
		{
			name: "row with six numbers",
			mutate: func(tk *Ticket) {
				for col, n := range tk[0] {
					if n == 0 {
						lo, _ := ColumnRange(col)
						tk[0][col] = lo
						return
					}
				}
			},
		},
		{
			name: "row with four numbers",
			mutate: func(tk *Ticket) {
				for col, n := range tk[0] {
					if n != 0 {
						tk[0][col] = 0
						return
					}
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk := good
			tc.mutate(&tk)
			assert.ErrorIs(t, tk.Validate(), ErrMalformed)
		})
	}
}

func TestRow(t *testing.T) {
	var tk Ticket
	tk[2] = [Cols]int{3, 0, 25, 0, 41, 0, 66, 0, 88}
	assert.Equal(t, []int{3, 25, 41, 66, 88}, tk.Row(2))
	assert.Nil(t, tk.Row(-1))
	assert.Nil(t, tk.Row(Rows))
	assert.True(t, tk.Contains(41))
	assert.False(t, tk.Contains(40))
}

func TestJSON_EmptyCellsAreNull(t *testing.T) {
	tk := seeded(11).Generate()

	data, err := json.Marshal(tk)
	require.NoError(t, err)

	var raw [][]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, Rows)
	for row := range Rows {
		nulls := 0
		for _, cell := range raw[row] {
			if cell == nil {
				nulls++
			}
		}
		assert.Equal(t, Cols-PerRow, nulls)
	}

	var back Ticket
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tk, back)
}
