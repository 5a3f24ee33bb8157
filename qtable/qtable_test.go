package qtable

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"qmaze/maze"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIndexing(t *testing.T) {
	Convey("Flat addresses follow row, column, action order", t, func() {
		So(Size, ShouldEqual, 100)
		So(Index(0, 0, maze.Up), ShouldEqual, 0)
		So(Index(0, 0, maze.Right), ShouldEqual, 3)
		So(Index(0, 1, maze.Up), ShouldEqual, 4)
		So(Index(1, 0, maze.Up), ShouldEqual, 20)
		So(Index(4, 4, maze.Right), ShouldEqual, Size-1)
	})
}

func TestDecodeEncode(t *testing.T) {
	Convey("Given a table with distinct entries", t, func() {
		var table Table
		for i := range table {
			table[i] = int32(i*7 - 300)
		}

		Convey("Decode reads the four values of a cell", func() {
			So(table.Decode(1, 2), ShouldResemble, Values{
				table[28], table[29], table[30], table[31],
			})
		})

		Convey("Encode writes only the addressed cell", func() {
			before := table
			table.Encode(2, 3, Values{1, 2, 3, 4})
			So(table.Decode(2, 3), ShouldResemble, Values{1, 2, 3, 4})
			So(table.Get(2, 3, maze.Left), ShouldEqual, int32(3))
			for i := range table {
				if i < Index(2, 3, maze.Up) || i > Index(2, 3, maze.Right) {
					So(table[i], ShouldEqual, before[i])
				}
			}
		})

		Convey("Encoding a decoded cell leaves the table unchanged", func() {
			before := table
			for row := 0; row < maze.N; row++ {
				for col := 0; col < maze.N; col++ {
					table.Encode(row, col, table.Decode(row, col))
				}
			}
			So(table, ShouldResemble, before)
		})

		Convey("Values is a copy in storage order", func() {
			vals := table.Values()
			So(len(vals), ShouldEqual, Size)
			So(vals[57], ShouldEqual, table[57])
			vals[57] = 0
			So(table[57], ShouldNotEqual, int32(0))
		})
	})
}

func TestBestAction(t *testing.T) {
	Convey("Ties are broken by the lowest ordinal", t, func() {
		So(BestAction(Values{5, 5, 3, 1}), ShouldEqual, maze.Up)
		So(BestAction(Values{0, 0, 0, 0}), ShouldEqual, maze.Up)
		So(BestAction(Values{1, 7, 7, 7}), ShouldEqual, maze.Down)
		So(BestAction(Values{-9, -8, -1, -1}), ShouldEqual, maze.Left)
		So(BestAction(Values{0, 0, 0, 1}), ShouldEqual, maze.Right)
		So(Max(Values{-9, -8, -1, -3}), ShouldEqual, int32(-1))
	})
}

func TestExtractPolicy(t *testing.T) {
	Convey("Given a table whose values point along a path", t, func() {
		layout := maze.Default
		var table Table
		table.Encode(0, 0, Values{5, 5, 3, 1})
		table.Encode(0, 1, Values{0, 0, 0, 9})

		policy := table.ExtractPolicy(&layout)

		Convey("Every non-wall cell has an action and walls have none", func() {
			open := 0
			layout.Visit(func(pos maze.Position, cell maze.Cell) {
				_, ok := policy[pos]
				So(ok, ShouldEqual, cell != maze.Wall)
				if cell != maze.Wall {
					open++
				}
			})
			So(len(policy), ShouldEqual, open)
		})

		Convey("Equal values select the first action", func() {
			So(policy[maze.Position{Row: 0, Col: 0}], ShouldEqual, maze.Up)
			So(policy[maze.Position{Row: 0, Col: 1}], ShouldEqual, maze.Right)
		})

		Convey("Following a policy that bumps a wall never reaches the goal", func() {
			path, reached := policy.Follow(&layout, 10)
			So(reached, ShouldBeFalse)
			So(len(path), ShouldEqual, 11)
		})
	})

	Convey("Given a hand-built shortest-path policy", t, func() {
		layout := maze.Default
		moves := map[maze.Position]maze.Action{
			{Row: 0, Col: 0}: maze.Right,
			{Row: 0, Col: 1}: maze.Right,
			{Row: 0, Col: 2}: maze.Down,
			{Row: 1, Col: 2}: maze.Down,
			{Row: 2, Col: 2}: maze.Down,
			{Row: 3, Col: 2}: maze.Down,
			{Row: 4, Col: 2}: maze.Right,
			{Row: 4, Col: 3}: maze.Right,
		}
		var table Table
		for pos, a := range moves {
			var q Values
			q[a] = 10
			table.Encode(pos.Row, pos.Col, q)
		}

		path, reached := table.ExtractPolicy(&layout).Follow(&layout, 50)
		So(reached, ShouldBeTrue)
		So(len(path), ShouldEqual, 9)
		So(path[len(path)-1], ShouldResemble, maze.Position{Row: 4, Col: 4})
	})
}

func TestShow(t *testing.T) {
	Convey("Console dumps cover every row", t, func() {
		layout := maze.Default
		var table Table
		table.Encode(0, 0, Values{0, 0, 0, 4})

		var buf bytes.Buffer
		ShowPolicy(&buf, &layout, &table)
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		So(len(lines), ShouldEqual, maze.N)
		So(strings.TrimSpace(lines[0]), ShouldEqual, "> ^ ^ - ^")

		buf.Reset()
		ShowValues(&buf, &layout, &table)
		So(buf.String(), ShouldStartWith, "Max vals:")
		So(buf.String(), ShouldContainSubstring, "4")
	})
}

func TestStateCodec(t *testing.T) {
	Convey("Given a trained-looking state", t, func() {
		state := NewState()
		So(state.Seed, ShouldEqual, uint32(1))
		state.Seed = 0xdeadbeef
		state.Table[0] = -1
		state.Table[Size-1] = 1 << 30
		state.Table[42] = -123456

		Convey("It encodes to the fixed persisted layout", func() {
			data, err := state.MarshalBinary()
			So(err, ShouldBeNil)
			So(len(data), ShouldEqual, StateSize)
			So(data[:4], ShouldResemble, []byte{0xde, 0xad, 0xbe, 0xef})
			So(data[4:8], ShouldResemble, []byte{0xff, 0xff, 0xff, 0xff})
			So(data[StateSize-4:], ShouldResemble, []byte{0x40, 0, 0, 0})

			var decoded State
			So(decoded.UnmarshalBinary(data), ShouldBeNil)
			So(decoded, ShouldResemble, state)
		})

		Convey("Truncated input is rejected", func() {
			data, _ := state.MarshalBinary()
			var decoded State
			err := decoded.UnmarshalBinary(data[:StateSize-1])
			So(errors.Is(err, ErrSnapshotSize), ShouldBeTrue)
		})
	})
}
