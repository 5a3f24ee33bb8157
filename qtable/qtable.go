// Package qtable stores the learned action values of the maze as a flat array of
// fixed-point int32s, addressed row*N*4 + col*4 + action.
package qtable

import (
	"fmt"
	"io"

	"qmaze/maze"
)

// Size is the number of entries in a table: one per (cell, action).
const Size = maze.N * maze.N * maze.NumActions

// Values holds the four action values of one cell, indexed by action ordinal.
type Values [maze.NumActions]int32

// Table is the flat q-table. It is a value type: assigning it copies it, which is
// how snapshots are handed to readers while training continues.
// Bounds are only those of the fixed array; callers pass coordinates already
// checked against the layout.
type Table [Size]int32

// Index returns the flat address of (row, col, action).
func Index(row, col int, action maze.Action) int {
	return row*maze.N*maze.NumActions + col*maze.NumActions + int(action)
}

// Decode reads the four action values of a cell.
func (t *Table) Decode(row, col int) (q Values) {
	base := Index(row, col, maze.Up)
	copy(q[:], t[base:base+maze.NumActions])
	return
}

// Encode writes back the four action values of a cell.
func (t *Table) Encode(row, col int, q Values) {
	base := Index(row, col, maze.Up)
	copy(t[base:base+maze.NumActions], q[:])
}

// Get returns a single entry.
func (t *Table) Get(row, col int, action maze.Action) int32 {
	return t[Index(row, col, action)]
}

// Values returns a copy of the whole table in storage order.
func (t *Table) Values() []int32 {
	vals := make([]int32, Size)
	copy(vals, t[:])
	return vals
}

// BestAction returns the action with the strictly greatest value. Ties go to the
// lowest ordinal, since a later action only wins by being strictly greater.
func BestAction(q Values) maze.Action {
	best := maze.Up
	for _, a := range maze.Actions[1:] {
		if q[a] > q[best] {
			best = a
		}
	}
	return best
}

// Max returns the greatest of the four values.
func Max(q Values) int32 {
	return q[BestAction(q)]
}

// Policy maps each non-wall cell to its best action.
type Policy map[maze.Position]maze.Action

// ExtractPolicy returns the greedy policy for every non-wall cell of the layout.
func (t *Table) ExtractPolicy(layout *maze.Layout) Policy {
	policy := Policy{}
	layout.Visit(func(pos maze.Position, cell maze.Cell) {
		if cell == maze.Wall {
			return
		}
		policy[pos] = BestAction(t.Decode(pos.Row, pos.Col))
	})
	return policy
}

// Follow walks the policy from the layout's start for at most maxSteps moves and
// returns the visited positions, start included, and whether the goal was reached.
func (p Policy) Follow(layout *maze.Layout, maxSteps int) (path []maze.Position, reachedGoal bool) {
	pos := layout.FindStart()
	path = append(path, pos)
	for i := 0; i < maxSteps; i++ {
		pos = layout.Transition(pos, p[pos])
		path = append(path, pos)
		if layout.IsGoal(pos) {
			return path, true
		}
	}
	return path, false
}

// ShowPolicy prints the greedy action of each cell, walls shown as '-'.
func ShowPolicy(w io.Writer, layout *maze.Layout, t *Table) {
	policy := t.ExtractPolicy(layout)
	for row := 0; row < maze.N; row++ {
		fmt.Fprint(w, " ")
		for col := 0; col < maze.N; col++ {
			switch cell := layout.CellAt(row, col); cell {
			case maze.Wall:
				fmt.Fprint(w, "- ")
			case maze.Goal:
				fmt.Fprintf(w, "%c ", cell)
			default:
				fmt.Fprintf(w, "%c ", policy[maze.Position{Row: row, Col: col}].Arrow())
			}
		}
		fmt.Fprintln(w)
	}
}

// ShowValues prints the max action value of each cell.
func ShowValues(w io.Writer, layout *maze.Layout, t *Table) {
	fmt.Fprintln(w, "Max vals:")
	for row := 0; row < maze.N; row++ {
		fmt.Fprint(w, " ")
		for col := 0; col < maze.N; col++ {
			if layout.CellAt(row, col) == maze.Wall {
				fmt.Fprintf(w, "%6s ", "-")
				continue
			}
			fmt.Fprintf(w, "%6d ", Max(t.Decode(row, col)))
		}
		fmt.Fprintln(w)
	}
}
