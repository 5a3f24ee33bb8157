package cell_views

import (
	"fmt"
	"html/template"
	"math"

	"qmaze/maze"
	"qmaze/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValueFunction provides a view of the current value function as a 2d
// isometric projection of the surface (x, y, max value).
type ValueFunction struct {
	id      string
	updates <-chan []fastview.EleUpdate
	proj    projection
}

const (
	cellDim = 80 // Cell height/width in pixels
	// Values near the goal approach ten times the goal reward; a unit of z spans this many.
	valueUnit = 250.0
)

func NewValueFunction(
	done <-chan struct{},
	cells <-chan [][]Cell,
) (vf *ValueFunction) {
	vf = &ValueFunction{
		id:   template.HTMLEscapeString("valuefunction"),
		proj: newProjection(maze.N, maze.N, math.Pi/6),
	}
	vf.updates = channerics.Convert(done, cells, vf.onUpdate)
	return
}

func (vf *ValueFunction) Updates() <-chan []fastview.EleUpdate {
	return vf.updates
}

// projection holds the isometric view parameters for a fixed grid size.
type projection struct {
	width, height  float64 // canvas size in pixels
	xyscale        float64 // pixels per x or y unit
	zscale         float64 // pixels per z unit
	sinAng, cosAng float64 // angle of the x, y axes
}

func newProjection(xcells, ycells int, ang float64) projection {
	return projection{
		width:   float64(xcells) * cellDim,
		height:  float64(ycells) * cellDim,
		xyscale: cellDim,
		zscale:  cellDim * 0.3,
		sinAng:  math.Sin(ang),
		cosAng:  math.Cos(ang),
	}
}

func (p projection) project(x, y, z float64) (float64, float64) {
	sx := (x - y) * p.cosAng * p.xyscale
	sy := (x+y)*p.sinAng*p.xyscale - z*p.zscale
	return sx, sy
}

func height(cell Cell) float64 {
	return float64(cell.Max) / valueUnit
}

type funcPolygon struct {
	Id     string
	ax, ay float64
	bx, by float64
	cx, cy float64
	dx, dy float64
}

// makeFuncPolygon returns the projected polygon spanning four adjacent cells:
// a is bottom left, b top left, c top right and d bottom right.
func (p projection) makeFuncPolygon(id string, a, b, c, d Cell) (fp *funcPolygon) {
	fp = &funcPolygon{Id: id}
	fp.ax, fp.ay = p.project(float64(a.X), float64(a.Y), height(a))
	fp.bx, fp.by = p.project(float64(b.X), float64(b.Y), height(b))
	fp.cx, fp.cy = p.project(float64(c.X), float64(c.Y), height(c))
	fp.dx, fp.dy = p.project(float64(d.X), float64(d.Y), height(d))
	return
}

// String returns a string suitable for the svg-polygon 'points' attribute.
func (fp *funcPolygon) String() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(fp.ax), int(fp.ay),
		int(fp.bx), int(fp.by),
		int(fp.cx), int(fp.cy),
		int(fp.dx), int(fp.dy),
	)
}

func (fp *funcPolygon) bounds() (minX, minY, maxX, maxY float64) {
	minX = math.Min(math.Min(fp.ax, fp.bx), math.Min(fp.cx, fp.dx))
	minY = math.Min(math.Min(fp.ay, fp.by), math.Min(fp.cy, fp.dy))
	maxX = math.Max(math.Max(fp.ax, fp.bx), math.Max(fp.cx, fp.dx))
	maxY = math.Max(math.Max(fp.ay, fp.by), math.Max(fp.cy, fp.dy))
	return
}

func polygonId(cell Cell) string {
	return fmt.Sprintf("%d-%d-value-polygon", cell.X, cell.Y)
}

// Returns the set of view updates needed for the view to reflect current values.
func (vf *ValueFunction) onUpdate(cells [][]Cell) (ops []fastview.EleUpdate) {
	// Min and max values fix the ends of the pseudo-gradient; each polygon is
	// shaded with the average of its four corners.
	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	for _, col := range cells {
		for _, cell := range col {
			minVal = math.Min(minVal, float64(cell.Max))
			maxVal = math.Max(maxVal, float64(cell.Max))
		}
	}

	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for xi, col := range cells[:len(cells)-1] {
		for yi, cell := range col[:len(col)-1] {
			a := cells[xi][yi+1]
			b := cells[xi][yi]
			c := cells[xi+1][yi]
			d := cells[xi+1][yi+1]
			polygon := vf.proj.makeFuncPolygon(polygonId(cell), a, b, c, d)

			pxmin, pymin, pxmax, pymax := polygon.bounds()
			xmin, ymin = math.Min(xmin, pxmin), math.Min(ymin, pymin)
			xmax, ymax = math.Max(xmax, pxmax), math.Max(ymax, pymax)

			avgVal := float64(a.Max+b.Max+c.Max+d.Max) / 4
			ops = append(ops, fastview.EleUpdate{
				EleId: polygon.Id,
				Ops: []fastview.Op{
					{Key: "points", Value: polygon.String()},
					{Key: "fill", Value: getRGBFill(avgVal, minVal, maxVal)},
				},
			})
		}
	}

	// Shift by the min x and y to center the view, and scale down only if needed to fit.
	scaler := math.Min(
		math.Min(
			math.Abs(vf.proj.width/(xmax-xmin)),
			math.Abs(vf.proj.height/(ymax-ymin)),
		),
		1.0,
	)

	ops = append(ops, fastview.EleUpdate{
		EleId: vf.id + "-group",
		Ops: []fastview.Op{
			{
				Key:   "transform",
				Value: fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin)),
			},
		},
	})
	return
}

// getRGBFill shades from blue at minVal to red at maxVal.
func getRGBFill(avgVal, minVal, maxVal float64) string {
	if maxVal <= minVal {
		return "rgb(0%,0%,100%)"
	}
	redPct := int(100.0 * (avgVal - minVal) / (maxVal - minVal))
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

// Parse returns an svg of polygons plotting the value function surface as a 2D projection.
func (vf *ValueFunction) Parse(
	t *template.Template,
) (name string, err error) {
	name = vf.id
	addedMap := template.FuncMap{
		"getPolyPoints": func(a, b, c, d Cell) string {
			return vf.proj.makeFuncPolygon("", a, b, c, d).String()
		},
		"polygonId": polygonId,
	}
	// Polygons are drawn back to front so that nearer ones obscure farther ones.
	_, err = t.Funcs(addedMap).Parse(
		`{{ define "` + name + `" }}
		<div style="padding:40px;">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $num_x_polys := sub $x_cells 1 }}
			{{ $num_y_polys := sub $y_cells 1 }}
			{{ $width := mult ` + fmt.Sprintf("%d", cellDim) + ` $x_cells }}
			{{ $height := mult ` + fmt.Sprintf("%d", cellDim) + ` $y_cells }}
			<svg id="` + vf.id + `" xmlns='http://www.w3.org/2000/svg'
				width="{{ mult $width 2 }}px"
				height="{{ mult $height 2 }}px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 3;">
				<g id="` + vf.id + "-group" + `" transform="translate(0 0)">
				{{ $cells := . }}
				{{ range $xi, $col := $cells }}
					{{ if lt $xi $num_x_polys }}
						{{ range $j, $unused := $col }}
							{{ $yi := sub (sub (len $col) $j) 1 }}
							{{ if lt $yi $num_y_polys }}
								{{ $cell := index $col $yi }}
								<polygon id="{{ polygonId $cell }}"
									fill="black" fill-opacity="1.0"
									points="{{ getPolyPoints (index $cells $xi (add $yi 1)) $cell (index $cells (add $xi 1) $yi) (index $cells (add $xi 1) (add $yi 1)) }}" />
							{{ end }}
						{{ end }}
					{{ end }}
				{{ end }}
				</g>
			</svg>
		</div>
		{{ end }}`)
	return
}
