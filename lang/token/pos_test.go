package token

import "testing"

func TestPosLineCol(t *testing.T) {
	cases := []struct {
		line, col int
	}{
		{1, 1},
		{1, 40},
		{120, 3},
		{MaxLines, MaxCols},
	}
	for _, c := range cases {
		p := MakePos(c.line, c.col)
		gotLine, gotCol := p.LineCol()
		if gotLine != c.line || gotCol != c.col {
			t.Errorf("MakePos(%d,%d).LineCol() = (%d,%d)", c.line, c.col, gotLine, gotCol)
		}
		if p.Unknown() {
			t.Errorf("MakePos(%d,%d) reported Unknown", c.line, c.col)
		}
	}
}

func TestPosUnknown(t *testing.T) {
	if !Pos(0).Unknown() {
		t.Error("zero Pos should be Unknown")
	}
}
