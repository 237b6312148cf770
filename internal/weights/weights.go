// Package weights loads the classifier weight matrix exported next to the
// CAM model: a headerless, row-major run of little-endian float32 values.
package weights

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Snowy7/sanad/internal/cam"
)

const floatSize = 4

// Matrix is an immutable [rows, cols] classifier weight matrix. Row i is the
// weight vector of class i. Safe for concurrent readers.
type Matrix struct {
	rows, cols int
	data       []float32
}

// New wraps data as a rows x cols matrix.
func New(rows, cols int, data []float32) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: weight matrix shape [%d %d]", cam.ErrInvalidSize, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d weights for shape [%d %d]", cam.ErrDimensionMismatch, len(data), rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, data: data}, nil
}

// Read decodes exactly rows*cols floats from r. Short or long input is a
// dimension mismatch.
func Read(r io.Reader, rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: weight matrix shape [%d %d]", cam.ErrInvalidSize, rows, cols)
	}

	data := make([]float32, rows*cols)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: weight data shorter than [%d %d]", cam.ErrDimensionMismatch, rows, cols)
		}
		return nil, fmt.Errorf("failed to read classifier weights: %w", err)
	}

	var extra [1]byte
	if _, err := io.ReadFull(r, extra[:]); err == nil {
		return nil, fmt.Errorf("%w: weight data longer than [%d %d]", cam.ErrDimensionMismatch, rows, cols)
	}

	return New(rows, cols, data)
}

// Load reads a weight file whose shape is known up front: rows from the
// label list, cols from the feature tensor's channel count.
func Load(path string, rows, cols int) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open classifier weights: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat classifier weights: %w", err)
	}
	if want := int64(rows) * int64(cols) * floatSize; info.Size() != want {
		return nil, fmt.Errorf("%w: %s is %d bytes, expected %d for [%d %d]",
			cam.ErrDimensionMismatch, path, info.Size(), want, rows, cols)
	}

	return Read(bufio.NewReader(f), rows, cols)
}

// Infer loads a weight file when only the class count is known and derives
// the channel count from the file size.
func Infer(path string, rows int) (*Matrix, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("%w: %d classes", cam.ErrInvalidSize, rows)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat classifier weights: %w", err)
	}

	size := info.Size()
	if size == 0 || size%(floatSize*int64(rows)) != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes, not a whole number of %d float32 rows",
			cam.ErrDimensionMismatch, path, size, rows)
	}
	return Load(path, rows, int(size/floatSize/int64(rows)))
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// Row returns the weight vector for class i. The slice aliases the matrix
// and must not be written to.
func (m *Matrix) Row(i int) ([]float32, error) {
	if i < 0 || i >= m.rows {
		return nil, fmt.Errorf("class %d out of range [0, %d)", i, m.rows)
	}
	start, end := i*m.cols, (i+1)*m.cols
	return m.data[start:end:end], nil
}
