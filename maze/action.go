package maze

// Action is a move in one of the four grid directions.
// The ordinal of each action is its column in the q-table, so the order below is
// part of the persisted table format and must never change.
type Action uint8

const (
	Up Action = iota
	Down
	Left
	Right
)

// NumActions is the number of actions available in every cell.
const NumActions = 4

// Actions lists every action in ordinal order, which is also tie-break order.
var Actions = [NumActions]Action{Up, Down, Left, Right}

var actionNames = [NumActions]string{"up", "down", "left", "right"}

func (a Action) String() string {
	if int(a) < NumActions {
		return actionNames[a]
	}
	return "invalid"
}

// Delta returns the row and column displacement of the action.
func (a Action) Delta() (dr, dc int) {
	switch a {
	case Up:
		dr = -1
	case Down:
		dr = 1
	case Left:
		dc = -1
	case Right:
		dc = 1
	}
	return
}

// Arrow returns a printable rune for the action direction.
func (a Action) Arrow() rune {
	switch a {
	case Up:
		return '^'
	case Down:
		return 'v'
	case Left:
		return '<'
	case Right:
		return '>'
	}
	return '='
}

// Rotation is the clockwise angle in degrees from an upward arrow, as used by svg rotate().
func (a Action) Rotation() int {
	switch a {
	case Right:
		return 90
	case Down:
		return 180
	case Left:
		return 270
	}
	return 0
}
