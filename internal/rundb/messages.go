package rundb

import (
	"os"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
)

// The composite types used for messages to the ClickHouse database.

// ActivityMessage is the information for the fastpmactivity table: one row
// per program invocation, rewritten with an End time when it disconnects.
type ActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	CPUs      int
	Start     time.Time
	End       time.Time
}

// RunMessage is the information required to make an entry in the runs table.
type RunMessage struct {
	ID         string
	ActivityID string
	Device     string
	Isolation  string
	Policy     string
	Shutdown   string
	Reads      int
	Skipped    uint64
	LastSeq    uint64
	Mean       float64
	StdDev     float64
	Forced     bool
	Start      time.Time
	End        time.Time
}

// NewID returns a fresh, time-ordered identifier for a table row.
func NewID() string {
	return ulid.Make().String()
}

// NewActivity describes the running program.
func NewActivity(version, githash string) *ActivityMessage {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &ActivityMessage{
		ID:        NewID(),
		Hostname:  hostname,
		Githash:   githash,
		Version:   version,
		GoVersion: runtime.Version(),
		CPUs:      runtime.NumCPU(),
		Start:     time.Now(),
	}
}
