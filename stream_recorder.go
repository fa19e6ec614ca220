package fastpm

import (
	"github.com/usnistgov/fastpm/internal/npyappend"
)

// streamFlushRows is how often a StreamRecorder makes its file readable.
const streamFlushRows = 1000

// StreamRecorder appends each sample to a (N, 2) .npy file as it arrives,
// in the same layout as Recorder.Save, without holding the run in memory.
type StreamRecorder struct {
	app *npyappend.Appender
}

// NewStreamRecorder creates or truncates filename.
func NewStreamRecorder(filename string) (*StreamRecorder, error) {
	app, err := npyappend.Create(filename, 2)
	if err != nil {
		return nil, err
	}
	return &StreamRecorder{app: app}, nil
}

// Add appends one sample.
func (sr *StreamRecorder) Add(s Sample) error {
	if err := sr.app.Append(float64(s.Seq), s.Value); err != nil {
		return err
	}
	if sr.app.Rows()%streamFlushRows == 0 {
		return sr.app.Flush()
	}
	return nil
}

// Len is the number of samples written.
func (sr *StreamRecorder) Len() int {
	return sr.app.Rows()
}

// Close completes the file.
func (sr *StreamRecorder) Close() error {
	return sr.app.Close()
}
