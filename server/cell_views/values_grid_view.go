package cell_views

import (
	"fmt"
	"html/template"
	"strconv"

	"qmaze/maze"
	"qmaze/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValuesGrid draws the maze with, for each open cell, its max value, an arrow
// along the greedy action, and the four action values at the matching edges.
type ValuesGrid struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewValuesGrid(
	done <-chan struct{},
	cells <-chan [][]Cell,
) *ValuesGrid {
	vg := &ValuesGrid{id: "valuesgrid"}
	vg.updates = channerics.Convert(done, cells, vg.onUpdate)
	return vg
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

func textOp(val int32) []fastview.Op {
	return []fastview.Op{{Key: "textContent", Value: strconv.Itoa(int(val))}}
}

// onUpdate emits, per open cell, the value text, the arrow rotation and one
// text per action.
func (vg *ValuesGrid) onUpdate(cells [][]Cell) (updates []fastview.EleUpdate) {
	for _, col := range cells {
		for _, cell := range col {
			if cell.Wall {
				continue
			}
			prefix := fmt.Sprintf("%d-%d", cell.X, cell.Y)
			updates = append(updates,
				fastview.EleUpdate{EleId: prefix + "-value-text", Ops: textOp(cell.Max)},
				fastview.EleUpdate{
					EleId: prefix + "-policy-arrow",
					Ops: []fastview.Op{
						{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.PolicyArrowRotation)},
					},
				})
			for _, action := range maze.Actions {
				updates = append(updates, fastview.EleUpdate{
					EleId: prefix + "-q-" + action.String(),
					Ops:   textOp(cell.Q[action]),
				})
			}
		}
	}
	return
}

// Parse defines the grid's template. Walls are drawn but carry no text.
func (vg *ValuesGrid) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + vg.id + `" }}
	{{ $size := 100 }}
	{{ $half := div $size 2 }}
	<svg id="` + vg.id + `"
		width="{{ add (mult $size (len .)) 1 }}px"
		height="{{ add (mult $size (len (index . 0))) 1 }}px"
		style="shape-rendering: crispEdges;">
		{{ range $col := . }}
		{{ range $cell := $col }}
		{{ $x := mult $cell.X $size }}
		{{ $y := mult $cell.Y $size }}
		<rect x="{{ $x }}" y="{{ $y }}" width="{{ $size }}" height="{{ $size }}"
			fill="{{ $cell.Fill }}" stroke="black" stroke-width="1"/>
		{{ if not $cell.Wall }}
		{{ $cx := add $x $half }}
		{{ $cy := add $y $half }}
		<text id="{{ $cell.X }}-{{ $cell.Y }}-value-text" x="{{ $cx }}" y="{{ sub $cy 10 }}"
			fill="blue" text-anchor="middle">{{ $cell.Max }}</text>
		<g transform="translate({{ $cx }}, {{ add $cy 18 }})">
			<text id="{{ $cell.X }}-{{ $cell.Y }}-policy-arrow" fill="blue"
				dominant-baseline="central" text-anchor="middle"
				transform="rotate({{ $cell.PolicyArrowRotation }})">&uarr;</text>
		</g>
		<g font-size="10" fill="dimgray">
			<text id="{{ $cell.X }}-{{ $cell.Y }}-q-up" x="{{ $cx }}" y="{{ add $y 12 }}"
				text-anchor="middle">{{ index $cell.Q 0 }}</text>
			<text id="{{ $cell.X }}-{{ $cell.Y }}-q-down" x="{{ $cx }}" y="{{ sub (add $y $size) 4 }}"
				text-anchor="middle">{{ index $cell.Q 1 }}</text>
			<text id="{{ $cell.X }}-{{ $cell.Y }}-q-left" x="{{ add $x 3 }}" y="{{ $cy }}"
				text-anchor="start">{{ index $cell.Q 2 }}</text>
			<text id="{{ $cell.X }}-{{ $cell.Y }}-q-right" x="{{ sub (add $x $size) 3 }}" y="{{ $cy }}"
				text-anchor="end">{{ index $cell.Q 3 }}</text>
		</g>
		{{ end }}
		{{ end }}
		{{ end }}
	</svg>
	{{ end }}`)
	return vg.id, err
}
