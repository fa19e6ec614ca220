// Package npyappend writes a two-dimensional float64 .npy file one row at a
// time. The header is rewritten with the current row count on every Flush and
// on Close, so the file can be read while it grows.
package npyappend

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
)

// headerLen is the size of the whole header, magic string included. The row
// count is padded into a fixed-size header so it can be rewritten in place.
const headerLen = 128

const magic = "\x93NUMPY\x01\x00"

// Appender appends rows of ncols float64 values to a .npy file.
type Appender struct {
	file  *os.File
	w     *bufio.Writer
	ncols int
	nrows int
	row   []byte
}

// Create truncates or creates filename and writes an empty (0, ncols) header.
func Create(filename string, ncols int) (*Appender, error) {
	if ncols < 1 {
		return nil, fmt.Errorf("npyappend: %d columns, need at least 1", ncols)
	}
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	a := &Appender{
		file:  file,
		w:     bufio.NewWriter(file),
		ncols: ncols,
		row:   make([]byte, 8*ncols),
	}
	if _, err := a.w.Write(a.header()); err != nil {
		file.Close()
		return nil, err
	}
	return a, nil
}

// Append adds one row. It must have exactly ncols values.
func (a *Appender) Append(row ...float64) error {
	if len(row) != a.ncols {
		return fmt.Errorf("npyappend: row has %d values, want %d", len(row), a.ncols)
	}
	for i, v := range row {
		binary.LittleEndian.PutUint64(a.row[8*i:], math.Float64bits(v))
	}
	if _, err := a.w.Write(a.row); err != nil {
		return err
	}
	a.nrows++
	return nil
}

// Rows is the number of rows appended so far.
func (a *Appender) Rows() int {
	return a.nrows
}

// Flush writes buffered rows and updates the header to match.
func (a *Appender) Flush() error {
	if err := a.w.Flush(); err != nil {
		return err
	}
	_, err := a.file.WriteAt(a.header(), 0)
	return err
}

// Close flushes and closes the file.
func (a *Appender) Close() error {
	if err := a.Flush(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}

// header renders the magic string, the little-endian dict length, and the
// dict padded with spaces to end in a newline at headerLen.
func (a *Appender) header() []byte {
	dict := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, %d), }", a.nrows, a.ncols)
	dictLen := headerLen - len(magic) - 2
	padding := dictLen - len(dict) - 1
	hdr := make([]byte, 0, headerLen)
	hdr = append(hdr, magic...)
	hdr = binary.LittleEndian.AppendUint16(hdr, uint16(dictLen))
	hdr = append(hdr, dict...)
	hdr = append(hdr, strings.Repeat(" ", padding)...)
	return append(hdr, '\n')
}
