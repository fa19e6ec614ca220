package fastpm

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ReadStats accumulates the samples a reader actually received, to judge how
// fast the producer runs compared to the reader.
type ReadStats struct {
	values   []float64
	firstSeq uint64
	lastSeq  uint64
	first    time.Time
	last     time.Time
}

// ReadSummary is a finished ReadStats.
type ReadSummary struct {
	Reads        int
	FirstSeq     uint64
	LastSeq      uint64
	Skipped      uint64  // produced between first and last but not read
	Mean         float64 // of the values read
	StdDev       float64
	Elapsed      time.Duration
	ProducedRate float64 // samples per second implied by the sequence numbers
	ReadRate     float64 // samples per second actually read
}

// Add records one sample received at time t. A sample whose sequence number
// is not above the last one added is ignored.
func (rs *ReadStats) Add(s Sample, t time.Time) {
	if len(rs.values) > 0 && s.Seq <= rs.lastSeq {
		return
	}
	if len(rs.values) == 0 {
		rs.firstSeq = s.Seq
		rs.first = t
	}
	rs.values = append(rs.values, s.Value)
	rs.lastSeq = s.Seq
	rs.last = t
}

// Len is the number of samples added.
func (rs *ReadStats) Len() int {
	return len(rs.values)
}

// Values returns the recorded values in the order they were added.
func (rs *ReadStats) Values() []float64 {
	return rs.values
}

// Summary computes statistics over everything added so far.
func (rs *ReadStats) Summary() ReadSummary {
	sum := ReadSummary{Reads: len(rs.values)}
	if sum.Reads == 0 {
		sum.Mean, sum.StdDev = math.NaN(), math.NaN()
		return sum
	}
	sum.FirstSeq = rs.firstSeq
	sum.LastSeq = rs.lastSeq
	span := rs.lastSeq - rs.firstSeq + 1
	sum.Skipped = span - uint64(sum.Reads)
	if sum.Reads > 1 {
		sum.Mean, sum.StdDev = stat.MeanStdDev(rs.values, nil)
	} else {
		sum.Mean, sum.StdDev = rs.values[0], 0
	}
	sum.Elapsed = rs.last.Sub(rs.first)
	if secs := sum.Elapsed.Seconds(); secs > 0 {
		sum.ProducedRate = float64(rs.lastSeq-rs.firstSeq) / secs
		sum.ReadRate = float64(sum.Reads-1) / secs
	}
	return sum
}
