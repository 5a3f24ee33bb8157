package reinforcement

/*
Tabular Q-learning over the fixed maze. Everything is integer arithmetic so a
training call is bit-for-bit reproducible from its seed and starting table.

The update is the usual Q(s,a) += alpha*(r + gamma*max Q(s',.) - Q(s,a)) with the
percentages and values scaled to integers:

	delta = r*RewardScale + gamma*maxNext - Q(s,a)*ValueScale
	Q(s,a) += alpha*delta / UpdateScale

Note the asymmetry: gamma*maxNext is not scaled while reward and Q are. At a fixed
point Q = 10*r + gamma*maxNext/100, so values sit at ten times the reward scale.
This is kept as-is for compatibility with existing tables; it is worth a numerical
review before anyone relies on the absolute magnitudes.

Intermediates are int64. The new value is converted back to int32 with Go's
wrapping conversion, so an update that leaves the int32 range wraps around
instead of saturating. With percentages in [0,100] and the maze rewards this
cannot happen (values stay within a few thousand), but extreme inputs to Update
can produce it.
*/

import (
	"errors"
	"fmt"
	"io"
	"log"

	"qmaze/events"
	"qmaze/maze"
	"qmaze/qtable"
)

// Fixed-point scale factors of the update rule.
const (
	RewardScale int64 = 1000
	ValueScale  int64 = 100
	UpdateScale int64 = 10000
)

// MaxPercent is the upper bound of epsilon, alpha and gamma.
const MaxPercent = 100

// MaxStepsPerCall bounds Episodes*MaxSteps of a single call accepted by Validate.
// A call at the limit runs in well under a second.
const MaxStepsPerCall uint64 = 1_000_000

var (
	ErrParamRange = errors.New("training parameter out of range")
	ErrBudget     = errors.New("training call exceeds step budget")
)

// Params are the arguments of a single training call. Epsilon, Alpha and Gamma
// are percentages in [0,100].
type Params struct {
	Episodes uint32 `json:"episodes"`
	MaxSteps uint32 `json:"maxSteps"`
	Epsilon  uint32 `json:"epsilon"`
	Alpha    uint32 `json:"alpha"`
	Gamma    uint32 `json:"gamma"`
}

// Work is the most steps the call can run.
func (p Params) Work() uint64 {
	return uint64(p.Episodes) * uint64(p.MaxSteps)
}

// Validate rejects percentages above 100 and calls over MaxStepsPerCall.
// Used at the edges (config, http); Train itself accepts anything.
func (p Params) Validate() error {
	if p.Work() > MaxStepsPerCall {
		return fmt.Errorf("%w: episodes*maxSteps=%d exceeds %d", ErrBudget, p.Work(), MaxStepsPerCall)
	}
	for _, f := range []struct {
		name string
		val  uint32
	}{
		{"epsilon", p.Epsilon},
		{"alpha", p.Alpha},
		{"gamma", p.Gamma},
	} {
		if f.val > MaxPercent {
			return fmt.Errorf("%w: %s=%d exceeds %d", ErrParamRange, f.name, f.val, MaxPercent)
		}
	}
	return nil
}

// Clamp caps the percentages at 100. Train clamps rather than failing.
func (p Params) Clamp() Params {
	p.Epsilon = min(p.Epsilon, MaxPercent)
	p.Alpha = min(p.Alpha, MaxPercent)
	p.Gamma = min(p.Gamma, MaxPercent)
	return p
}

// Update applies one fixed-point Q-learning update to the value of action and
// returns the cell's new values.
func Update(
	q qtable.Values,
	action maze.Action,
	reward int32,
	maxNext int32,
	alpha, gamma uint32,
) qtable.Values {
	current := int64(q[action])
	delta := int64(reward)*RewardScale + int64(gamma)*int64(maxNext) - current*ValueScale
	q[action] = int32(current + int64(alpha)*delta/UpdateScale)
	return q
}

// Stats summarizes a training call.
type Stats struct {
	Episodes     uint64 `json:"episodes"`
	Steps        uint64 `json:"steps"`
	GoalsReached uint64 `json:"goalsReached"`
}

// Notifier receives the engine's fire-and-forget notifications.
type Notifier interface {
	Notify(kind events.Kind, attrs map[string]string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(events.Kind, map[string]string) {}

// ProgressFunc is a hook by which the training loop lends progress details.
// It is called synchronously with the episode count and a copy of the state, so
// it should return quickly; the copy may be kept.
type ProgressFunc func(episode uint32, snapshot qtable.State)

// Engine owns a maze layout and the persisted training state (seed and table).
// It holds no lock: callers serialize Train calls and reads against each other.
type Engine struct {
	layout        maze.Layout
	state         qtable.State
	notifier      Notifier
	progress      ProgressFunc
	progressEvery uint32
	logger        *log.Logger
}

type Option func(*Engine)

// WithNotifier sets where the training-completed notification is sent.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithProgress calls fn every `every` episodes of a training call.
func WithProgress(every uint32, fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progressEvery = every
		e.progress = fn
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine returns an engine over layout, resuming from state.
// Use qtable.NewState() for an untrained engine.
func NewEngine(layout maze.Layout, state qtable.State, opts ...Option) *Engine {
	e := &Engine{
		layout:   layout,
		state:    state,
		notifier: nopNotifier{},
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Train runs p.Episodes episodes from the start cell. Each episode ends on reaching
// the goal or after p.MaxSteps steps, with no extra penalty for running out.
// Percentages above 100 are clamped. Train never fails; a maze whose goal is
// unreachable just yields a table that never converges. One TrainingCompleted
// notification is sent per call.
func (e *Engine) Train(p Params) (stats Stats) {
	p = p.Clamp()
	table := &e.state.Table
	start := e.layout.FindStart()

	for episode := uint32(0); episode < p.Episodes; episode++ {
		pos := start
		for step := uint32(0); step < p.MaxSteps; step++ {
			q := table.Decode(pos.Row, pos.Col)
			var action maze.Action
			action, e.state.Seed = ChooseAction(q, p.Epsilon, e.state.Seed)

			next := e.layout.Transition(pos, action)
			reward := e.layout.Reward(next.Row, next.Col)
			maxNext := qtable.Max(table.Decode(next.Row, next.Col))
			table.Encode(pos.Row, pos.Col, Update(q, action, reward, maxNext, p.Alpha, p.Gamma))

			pos = next
			stats.Steps++
			if e.layout.IsGoal(pos) {
				stats.GoalsReached++
				break
			}
		}
		stats.Episodes++

		// Hook: periodically publish state for views, etc.
		if e.progress != nil && e.progressEvery > 0 && (episode+1)%e.progressEvery == 0 {
			e.progress(episode+1, e.state)
		}
	}

	e.logger.Printf("training completed: episodes=%d steps=%d goals=%d seed=%d",
		stats.Episodes, stats.Steps, stats.GoalsReached, e.state.Seed)
	e.notifier.Notify(events.TrainingCompleted, nil)
	return
}

// Snapshot returns a copy of the current seed and table.
func (e *Engine) Snapshot() qtable.State {
	return e.state
}

// Restore replaces the seed and table, e.g. with state saved by another process.
func (e *Engine) Restore(state qtable.State) {
	e.state = state
}

// DecodeQ returns the four action values of a cell.
func (e *Engine) DecodeQ(row, col int) qtable.Values {
	return e.state.Table.Decode(row, col)
}

// QTable returns a copy of every table entry in storage order.
func (e *Engine) QTable() []int32 {
	return e.state.Table.Values()
}

// Layout returns the engine's maze.
func (e *Engine) Layout() maze.Layout {
	return e.layout
}

// Policy returns the greedy policy of the current table.
func (e *Engine) Policy() qtable.Policy {
	return e.state.Table.ExtractPolicy(&e.layout)
}
