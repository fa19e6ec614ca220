package fastpm

import (
	"errors"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Recorder keeps every sample a reader received so the run can be saved as a
// NumPy array of shape (N, 2): column 0 is Seq, column 1 is Value.
type Recorder struct {
	samples []Sample
}

// Add appends one sample.
func (r *Recorder) Add(s Sample) {
	r.samples = append(r.samples, s)
}

// Len is the number of samples recorded.
func (r *Recorder) Len() int {
	return len(r.samples)
}

// Matrix returns the recording as an N x 2 matrix, or nil if it is empty.
func (r *Recorder) Matrix() *mat.Dense {
	if len(r.samples) == 0 {
		return nil
	}
	data := make([]float64, 0, 2*len(r.samples))
	for _, s := range r.samples {
		data = append(data, float64(s.Seq), s.Value)
	}
	return mat.NewDense(len(r.samples), 2, data)
}

// Save writes the recording to filename in .npy format.
func (r *Recorder) Save(filename string) error {
	m := r.Matrix()
	if m == nil {
		return errors.New("recorder has no samples to save")
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadRecording reads a file written by Recorder.Save.
func LoadRecording(filename string) ([]Sample, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	if cols != 2 {
		return nil, errors.New("recording does not have 2 columns")
	}
	samples := make([]Sample, rows)
	for i := range samples {
		samples[i] = Sample{Seq: uint64(m.At(i, 0)), Value: m.At(i, 1)}
	}
	return samples, nil
}
