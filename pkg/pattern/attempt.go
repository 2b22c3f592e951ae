package pattern

// Cell classifies one cell of a submitted grid against the target
type Cell int

const (
	CellUnset Cell = iota
	CellCorrect
	CellIncorrect
)

func (c Cell) String() string {
	switch c {
	case CellCorrect:
		return "correct"
	case CellIncorrect:
		return "incorrect"
	default:
		return "unset"
	}
}

// Attempt is a graded snapshot of a submitted grid
type Attempt struct {
	Grid   Pattern
	Result [Rows][Cols]Cell
	solved bool
}

// Grade classifies every cell of submitted relative to target.
// A set cell is correct when the target has it too, incorrect otherwise.
// Cells left empty are unset whether or not the target has them.
func Grade(submitted, target Pattern) Attempt {
	a := Attempt{Grid: submitted, solved: submitted == target}
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			switch {
			case !submitted[r][c]:
				a.Result[r][c] = CellUnset
			case target[r][c]:
				a.Result[r][c] = CellCorrect
			default:
				a.Result[r][c] = CellIncorrect
			}
		}
	}
	return a
}

// Solved reports whether the submission matched the target exactly
func (a Attempt) Solved() bool {
	return a.solved
}

// Count returns how many cells carry the classification
func (a Attempt) Count(kind Cell) int {
	n := 0
	for r := range a.Result {
		for c := range a.Result[r] {
			if a.Result[r][c] == kind {
				n++
			}
		}
	}
	return n
}

// Missing returns how many target notes the submission left out
func Missing(submitted, target Pattern) int {
	n := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if target[r][c] && !submitted[r][c] {
				n++
			}
		}
	}
	return n
}
