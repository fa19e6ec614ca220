// Package applog is the process-wide, append-only log sink. Every component
// gets its own *log.Logger from a Sink; all of them, plus the stderr of any
// worker process, funnel through one asynchronous writer into a rotated file.
package applog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/usnistgov/fastpm/internal/asyncbufio"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Depth and flush interval of the asynchronous writer.
const (
	channelDepth  = 4096
	flushInterval = 250 * time.Millisecond
)

// Sink owns the log destination.
type Sink struct {
	filename string
	dest     io.WriteCloser
	writer   *asyncbufio.Writer
}

// Open creates (if needed) and appends to filename, rotating it with lumberjack.
func Open(filename string) (*Sink, error) {
	dir, base := filepath.Split(filename)
	if dir == "" {
		dir = "."
	}
	fullname, err := MakeFileExist(dir, base)
	if err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   fullname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	}
	sink := NewSink(rotator)
	sink.filename = fullname
	return sink, nil
}

// NewSink wraps an arbitrary destination. Close will close dest.
func NewSink(dest io.WriteCloser) *Sink {
	return &Sink{
		dest:   dest,
		writer: asyncbufio.NewWriter(dest, channelDepth, flushInterval),
	}
}

// Filename is the file behind the sink, or "" if it does not write to a named file.
func (s *Sink) Filename() string {
	return s.filename
}

// Logger returns a logger with the given prefix that writes into the sink.
func (s *Sink) Logger(prefix string) *log.Logger {
	return log.New(s.writer, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Writer exposes the asynchronous writer, e.g. for io.MultiWriter.
func (s *Sink) Writer() io.Writer {
	return s.writer
}

// Flush pushes everything logged so far to the destination.
func (s *Sink) Flush() error {
	return s.writer.Flush()
}

// Close flushes and closes the destination. Loggers from this sink must not
// be used afterwards; their writes are discarded.
func (s *Sink) Close() error {
	s.writer.Close()
	if n := s.writer.Dropped(); n > 0 {
		fmt.Fprintf(s.dest, "applog: %d log writes were dropped\n", n)
	}
	return s.dest.Close()
}

// Discard returns a logger that throws everything away.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// MakeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't. It returns the full path.
func MakeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	if err := os.MkdirAll(dir, 0775); err != nil {
		return "", err
	}

	fullname := filepath.Join(dir, filename)
	f, err := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
	if err != nil {
		return "", err
	}
	f.Close()
	return fullname, nil
}
