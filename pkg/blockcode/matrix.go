package blockcode

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Word holds a bit vector of up to 32 bits. Element 0 of a vector of width w
// is stored in bit w-1 of the Word, so the vector reads left to right the same
// way it is printed with %0*b.
type Word uint32

// MaxWidth is the widest vector a Word can hold.
const MaxWidth = 32

// Bit returns element i of w, taken as a vector of the given width.
func (w Word) Bit(i, width int) uint8 {
	return uint8(w>>uint(width-1-i)) & 1
}

// Flip toggles element i of w, taken as a vector of the given width.
func (w Word) Flip(i, width int) Word {
	return w ^ 1<<uint(width-1-i)
}

// Format renders w as a string of width binary digits.
func (w Word) Format(width int) string {
	return fmt.Sprintf("%0*b", width, uint32(w)&uint32(mask(width)))
}

func mask(width int) Word {
	if width >= MaxWidth {
		return ^Word(0)
	}
	return Word(1)<<uint(width) - 1
}

// Matrix is a dense matrix over GF(2).
type Matrix struct {
	rows, cols int
	bits       [][]uint8
}

// ParseMatrix builds a Matrix from rows of '0' and '1' characters.
// Spaces inside a row are ignored.
func ParseMatrix(rows ...string) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, errors.New("matrix has no rows")
	}
	m := Matrix{rows: len(rows), bits: make([][]uint8, len(rows))}
	for i, row := range rows {
		row = strings.Replace(row, " ", "", -1)
		if i == 0 {
			m.cols = len(row)
		}
		if len(row) != m.cols || m.cols == 0 {
			return Matrix{}, errors.Errorf("row %d has %d columns, expected %d", i, len(row), m.cols)
		}
		m.bits[i] = make([]uint8, m.cols)
		for j, c := range row {
			switch c {
			case '0':
			case '1':
				m.bits[i][j] = 1
			default:
				return Matrix{}, errors.Errorf("row %d: invalid digit %q", i, c)
			}
		}
	}
	return m, nil
}

// MustParseMatrix is ParseMatrix that panics on malformed input.
func MustParseMatrix(rows ...string) Matrix {
	m, err := ParseMatrix(rows...)
	if err != nil {
		panic(err)
	}
	return m
}

// Identity returns the n×n identity matrix.
func Identity(n int) Matrix {
	m := zeros(n, n)
	for i := 0; i < n; i++ {
		m.bits[i][i] = 1
	}
	return m
}

func zeros(rows, cols int) Matrix {
	m := Matrix{rows: rows, cols: cols, bits: make([][]uint8, rows)}
	for i := range m.bits {
		m.bits[i] = make([]uint8, cols)
	}
	return m
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m Matrix) Cols() int { return m.cols }

// At returns the element in row i, column j.
func (m Matrix) At(i, j int) uint8 { return m.bits[i][j] }

// Row returns row i as a Word of width Cols.
func (m Matrix) Row(i int) Word {
	var w Word
	for j := 0; j < m.cols; j++ {
		w = w<<1 | Word(m.bits[i][j])
	}
	return w
}

// Transpose returns mᵗ.
func (m Matrix) Transpose() Matrix {
	t := zeros(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			t.bits[j][i] = m.bits[i][j]
		}
	}
	return t
}

// Mul returns m·o over GF(2).
func (m Matrix) Mul(o Matrix) (Matrix, error) {
	if m.cols != o.rows {
		return Matrix{}, errors.Errorf("cannot multiply %dx%d by %dx%d", m.rows, m.cols, o.rows, o.cols)
	}
	p := zeros(m.rows, o.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < o.cols; j++ {
			var acc uint8
			for x := 0; x < m.cols; x++ {
				acc ^= m.bits[i][x] & o.bits[x][j]
			}
			p.bits[i][j] = acc
		}
	}
	return p, nil
}

// IsZero reports whether every element is zero.
func (m Matrix) IsZero() bool {
	for _, row := range m.bits {
		for _, b := range row {
			if b != 0 {
				return false
			}
		}
	}
	return true
}

// MulVec returns v·m where v is a row vector of width Rows.
// Addition is exclusive or and multiplication is logical and.
func (m Matrix) MulVec(v Word) Word {
	var out Word
	for j := 0; j < m.cols; j++ {
		var acc uint8
		for i := 0; i < m.rows; i++ {
			acc ^= v.Bit(i, m.rows) & m.bits[i][j]
		}
		out = out<<1 | Word(acc)
	}
	return out
}

func (m Matrix) String() string {
	var b strings.Builder
	for i := 0; i < m.rows; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Row(i).Format(m.cols))
	}
	return b.String()
}
