package maze

import (
	"errors"
	"fmt"
	"io"
)

// Cell is the type of a single maze grid cell. The runes are the same ones used
// when writing a layout as strings, so a layout prints as it is written.
type Cell rune

const (
	Empty Cell = 'o'
	Wall  Cell = 'W'
	Start Cell = '-'
	Goal  Cell = '+'
)

const (
	// N is the fixed width and height of the maze.
	N = 5

	// Rewards for stepping into a cell. The goal reward is paid on the transition
	// into the goal, not as a separate terminal bonus.
	GoalReward int32 = 100
	StepReward int32 = -1
)

var (
	ErrLayoutSize    = errors.New("layout must be 5x5")
	ErrUnknownCell   = errors.New("unknown cell type")
	ErrNoStart       = errors.New("layout has no start cell")
	ErrMultipleStart = errors.New("layout has more than one start cell")
	ErrNoGoal        = errors.New("layout has no goal cell")
	ErrMultipleGoal  = errors.New("layout has more than one goal cell")
)

// Layout is the static maze, indexed [row][col] with row 0 at the top.
// It is a value type and is never mutated once built.
type Layout [N][N]Cell

// Position is a (row, col) coordinate in the maze.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Default is the built-in maze. Start is top left, goal bottom right, and the
// shortest path between them is eight steps.
var Default = MustParse([]string{
	"-ooWo",
	"oWooo",
	"oWoWo",
	"oooWo",
	"WWoo+",
})

// ParseLayout converts a set of row strings into a Layout and validates it.
// Rows are read top to bottom, exactly as they would print in a console.
func ParseLayout(rows []string) (layout Layout, err error) {
	if len(rows) != N {
		return layout, fmt.Errorf("%w: got %d rows", ErrLayoutSize, len(rows))
	}

	for row, line := range rows {
		runes := []rune(line)
		if len(runes) != N {
			return layout, fmt.Errorf("%w: row %d has %d cells", ErrLayoutSize, row, len(runes))
		}
		for col, r := range runes {
			switch cell := Cell(r); cell {
			case Empty, Wall, Start, Goal:
				layout[row][col] = cell
			default:
				return layout, fmt.Errorf("%w: %q at %v", ErrUnknownCell, r, Position{row, col})
			}
		}
	}

	err = layout.Validate()
	return
}

// MustParse is ParseLayout for layouts known at build time; it panics on error.
func MustParse(rows []string) Layout {
	layout, err := ParseLayout(rows)
	if err != nil {
		panic(err)
	}
	return layout
}

// Validate checks that the layout has exactly one start and exactly one goal.
func (l *Layout) Validate() error {
	starts, goals := 0, 0
	l.Visit(func(_ Position, cell Cell) {
		switch cell {
		case Start:
			starts++
		case Goal:
			goals++
		}
	})

	switch {
	case starts == 0:
		return ErrNoStart
	case starts > 1:
		return ErrMultipleStart
	case goals == 0:
		return ErrNoGoal
	case goals > 1:
		return ErrMultipleGoal
	}
	return nil
}

// CellAt returns the cell at row/col. Coordinates outside [0,N) panic; the layout
// is fixed, so passing them is a caller bug.
func (l *Layout) CellAt(row, col int) Cell {
	return l[row][col]
}

// InBounds reports whether row/col lies on the grid.
func InBounds(row, col int) bool {
	return row >= 0 && row < N && col >= 0 && col < N
}

// IsValid reports whether row/col is on the grid and is not a wall.
func (l *Layout) IsValid(row, col int) bool {
	return InBounds(row, col) && l[row][col] != Wall
}

// Reward is the per-step reward for entering row/col.
func (l *Layout) Reward(row, col int) int32 {
	if l[row][col] == Goal {
		return GoalReward
	}
	return StepReward
}

// IsGoal reports whether pos is the goal cell.
func (l *Layout) IsGoal(pos Position) bool {
	return l[pos.Row][pos.Col] == Goal
}

// FindStart scans the layout in row-major order and returns the first start cell.
// The result is only meaningful for a layout that passed Validate: with no start
// cell it returns (0,0), and with several it returns the first one found.
func (l *Layout) FindStart() (start Position) {
	for row := range l {
		for col := range l[row] {
			if l[row][col] == Start {
				return Position{row, col}
			}
		}
	}
	return
}

// Transition applies an action to pos. Moves that leave the grid or run into a
// wall leave the agent where it is.
func (l *Layout) Transition(pos Position, action Action) Position {
	dr, dc := action.Delta()
	row, col := pos.Row+dr, pos.Col+dc
	if !l.IsValid(row, col) {
		return pos
	}
	return Position{row, col}
}

// Visit calls fn for every cell in row-major order.
func (l *Layout) Visit(fn func(pos Position, cell Cell)) {
	for row := range l {
		for col := range l[row] {
			fn(Position{row, col}, l[row][col])
		}
	}
}

// Rows returns the layout as row strings, the inverse of ParseLayout.
func (l *Layout) Rows() []string {
	rows := make([]string, N)
	for row := range l {
		runes := make([]rune, N)
		for col, cell := range l[row] {
			runes[col] = rune(cell)
		}
		rows[row] = string(runes)
	}
	return rows
}

// ShowGrid prints the layout, for visual reference.
func ShowGrid(w io.Writer, l *Layout) {
	for row := range l {
		for col := range l[row] {
			fmt.Fprintf(w, "%c ", l[row][col])
		}
		fmt.Fprintln(w)
	}
}
