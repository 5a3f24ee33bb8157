// Package render draws the learned policy as a standalone SVG, optionally over
// seed-keyed generative art, and wraps it in token metadata.
package render

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"qmaze/maze"
	"qmaze/qtable"
)

const (
	Width    = 500
	Height   = 500
	CellSize = Width / maze.N
)

const (
	svgMimePrefix  = "data:image/svg+xml;base64,"
	jsonMimePrefix = "data:application/json;base64,"
)

// Fill returns the background color of a cell type.
func Fill(cell maze.Cell) (fill string) {
	switch cell {
	case maze.Wall:
		fill = "lightgreen"
	case maze.Empty:
		fill = "lightgray"
	case maze.Start:
		fill = "lightblue"
	case maze.Goal:
		fill = "lightyellow"
	}
	return
}

const svgHeader = `<?xml version="1.0" encoding="UTF-8"?><svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d"><rect width="100%%" height="100%%" fill="%s"/>`

// PolicySVG renders the maze with one arrow per open cell pointing along the
// greedy action, and the cell's max value beneath it.
func PolicySVG(layout *maze.Layout, t *qtable.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, svgHeader, Width, Height, Width, Height, "white")
	layout.Visit(func(pos maze.Position, cell maze.Cell) {
		fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" stroke="black" stroke-width="1"/>`,
			pos.Col*CellSize, pos.Row*CellSize, CellSize, CellSize, Fill(cell))
	})
	writePolicy(&sb, layout, t)
	sb.WriteString("</svg>")
	return sb.String()
}

// TokenSVG draws the policy over generative art keyed on the state's seed, so
// two tokens minted from different training histories look different even when
// their policies agree.
func TokenSVG(layout *maze.Layout, state *qtable.State) string {
	var seed [4]byte
	binary.BigEndian.PutUint32(seed[:], state.Seed)

	var sb strings.Builder
	fmt.Fprintf(&sb, svgHeader, Width, Height, Width, Height, Color(seed[:], 0))
	writeArt(&sb, seed[:])
	writePolicy(&sb, layout, &state.Table)
	sb.WriteString("</svg>")
	return sb.String()
}

// Color picks a color from the seed byte at index.
func Color(seed []byte, index int) string {
	b := seed[index%len(seed)]
	return fmt.Sprintf("#%02x%02x%02x", b*7, b*13, b*17)
}

// writeArt draws one shape per cell and ten connecting lines, all chosen by seed.
func writeArt(sb *strings.Builder, seed []byte) {
	third := CellSize / 3
	for i := 0; i < maze.N; i++ {
		for j := 0; j < maze.N; j++ {
			index := i*maze.N + j
			x, y := j*CellSize+CellSize/2, i*CellSize+CellSize/2
			switch seed[index%len(seed)] % 3 {
			case 0:
				fmt.Fprintf(sb, `<circle cx="%d" cy="%d" r="%d" fill="%s" opacity="0.7"/>`,
					x, y, third, Color(seed, index+1))
			case 1:
				fmt.Fprintf(sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" opacity="0.7"/>`,
					x-third, y-third, CellSize/2, CellSize/2, Color(seed, index+2))
			default:
				fmt.Fprintf(sb, `<polygon points="%d,%d %d,%d %d,%d" fill="%s" opacity="0.7"/>`,
					x, y-third, x-third, y+third, x+third, y+third, Color(seed, index+3))
			}
		}
	}

	at := func(i, bound int) int { return int(seed[i%len(seed)]) % bound }
	for i := 0; i < 10; i++ {
		fmt.Fprintf(sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2" opacity="0.5"/>`,
			at(i, Width), at(i+1, Height), at(i+2, Width), at(i+3, Height), Color(seed, i))
	}
}

// writePolicy draws an arrow along the greedy action of every open non-goal
// cell, with the cell's max value beneath it.
func writePolicy(sb *strings.Builder, layout *maze.Layout, t *qtable.Table) {
	policy := t.ExtractPolicy(layout)
	third := CellSize / 3
	layout.Visit(func(pos maze.Position, cell maze.Cell) {
		action, ok := policy[pos]
		if !ok || cell == maze.Goal {
			return
		}
		x, y := pos.Col*CellSize, pos.Row*CellSize
		cx, cy := x+CellSize/2, y+CellSize/2
		// an upward triangle, rotated about the cell center
		fmt.Fprintf(sb, `<polygon points="%d,%d %d,%d %d,%d" fill="steelblue" opacity="0.7" transform="rotate(%d %d %d)"/>`,
			cx, cy-third,
			cx-third/2, cy+third/2,
			cx+third/2, cy+third/2,
			action.Rotation(), cx, cy)
		fmt.Fprintf(sb, `<text x="%d" y="%d" font-size="14" text-anchor="middle">%d</text>`,
			cx, y+CellSize-8, qtable.Max(t.Decode(pos.Row, pos.Col)))
	})
}

// Metadata is the token metadata document.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// TokenURI returns a self-contained data URI for a token: base64 JSON metadata
// whose image is the base64-encoded svg.
func TokenURI(tokenID uint32, svg string) string {
	meta := Metadata{
		Name:        fmt.Sprintf("Maze Policy #%d", tokenID),
		Description: "The greedy policy a q-learning agent learned for its maze",
		Image:       svgMimePrefix + base64.StdEncoding.EncodeToString([]byte(svg)),
	}
	// Marshal cannot fail for a struct of strings.
	doc, _ := json.Marshal(meta)
	return jsonMimePrefix + base64.StdEncoding.EncodeToString(doc)
}

// DecodeTokenURI reverses TokenURI, returning the metadata and the decoded svg.
func DecodeTokenURI(uri string) (meta Metadata, svg string, err error) {
	encoded, ok := strings.CutPrefix(uri, jsonMimePrefix)
	if !ok {
		return meta, "", fmt.Errorf("not a json data uri: %.32q", uri)
	}
	doc, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return meta, "", fmt.Errorf("decode metadata: %w", err)
	}
	if err = json.Unmarshal(doc, &meta); err != nil {
		return meta, "", err
	}

	encoded, ok = strings.CutPrefix(meta.Image, svgMimePrefix)
	if !ok {
		return meta, "", fmt.Errorf("image is not an svg data uri")
	}
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return meta, "", fmt.Errorf("decode image: %w", err)
	}
	return meta, string(img), nil
}
