// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"qmaze/maze"
	"qmaze/qtable"
	"qmaze/render"
)

// Cell flattens one maze cell and its q-values into fields that are immediately
// usable as view parameters. cells[x][y] holds column x, row y; row 0 is the top
// row in both the console and the svg coordinate system, so no flip is needed.
type Cell struct {
	X, Y                int
	Q                   qtable.Values
	Max                 int32
	PolicyArrowRotation int
	Fill                string
	Wall                bool
}

// Converter returns a func converting states over layout into Cells, for
// consumption by the views.
func Converter(layout maze.Layout) func(qtable.State) [][]Cell {
	return func(state qtable.State) [][]Cell {
		return Convert(&layout, &state.Table)
	}
}

// Convert builds the [x][y] cell matrix of a table over layout.
func Convert(layout *maze.Layout, table *qtable.Table) (cells [][]Cell) {
	cells = make([][]Cell, maze.N)
	for x := range cells {
		cells[x] = make([]Cell, maze.N)
	}

	layout.Visit(func(pos maze.Position, cellType maze.Cell) {
		q := table.Decode(pos.Row, pos.Col)
		cell := Cell{
			X:    pos.Col,
			Y:    pos.Row,
			Fill: render.Fill(cellType),
			Wall: cellType == maze.Wall,
		}
		if !cell.Wall {
			cell.Q = q
			cell.Max = qtable.Max(q)
			cell.PolicyArrowRotation = qtable.BestAction(q).Rotation()
		}
		cells[pos.Col][pos.Row] = cell
	})
	return
}
