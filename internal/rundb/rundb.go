// Package rundb records program activity and monitoring runs in a ClickHouse database.
// When no server is reachable every operation quietly does nothing.
package rundb

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const timeFormat = "2006-01-02 15:04:05.000000"

// Options says where the database lives. Credentials come from the
// FASTPM_DB_USER and FASTPM_DB_PASSWORD environment variables.
type Options struct {
	Addr        string
	Database    string
	DialTimeout time.Duration
}

// Connection is a (possibly dummy) connection to the run database.
type Connection struct {
	conn     clickhouse.Conn
	err      error
	activity *ActivityMessage
	runmsg   chan *RunMessage
	logger   *log.Logger
	closed   sync.Once
	sync.WaitGroup
}

// IsConnected tells whether the database accepted our connection and no insert has failed.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// Err is the error that left the connection unusable, if any.
func (db *Connection) Err() error {
	if db == nil {
		return nil
	}
	return db.err
}

// Dummy returns a connection that records nothing.
func Dummy() *Connection {
	return &Connection{logger: log.New(io.Discard, "", 0)}
}

// Start connects, stores the activity entry, and begins serving RecordRun.
// Failure to reach the server is logged and yields a connection that is not
// connected; callers need not check.
func Start(opt Options, activity *ActivityMessage, logger *log.Logger) *Connection {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	db := connect(opt, activity.Version)
	db.logger = logger
	db.activity = activity
	if !db.IsConnected() {
		logger.Printf("Run database at %s unavailable: %v", opt.Addr, db.err)
		return db
	}
	db.logActivity()
	db.runmsg = make(chan *RunMessage)
	db.Add(1)
	go db.handleConnection()
	return db
}

func connect(opt Options, version string) *Connection {
	db := &Connection{}
	if opt.DialTimeout <= 0 {
		opt.DialTimeout = time.Second
	}
	auth := clickhouse.Auth{
		Database: opt.Database,
		Username: os.Getenv("FASTPM_DB_USER"),
		Password: os.Getenv("FASTPM_DB_PASSWORD"),
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "fastpm", Version: version},
		},
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr:        []string{opt.Addr},
		Auth:        auth,
		ClientInfo:  client,
		DialTimeout: opt.DialTimeout,
	})
	if err != nil {
		db.err = err
		return db
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*opt.DialTimeout)
	defer cancel()
	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			err = fmt.Errorf("exception [%d] %s: %w", exception.Code, exception.Message, err)
		}
		conn.Close()
		db.err = err
		return db
	}
	db.conn = conn
	return db
}

func (db *Connection) logActivity() {
	if !db.IsConnected() {
		return
	}
	const nowait = false
	ae := db.activity
	if err := db.conn.AsyncInsert(context.Background(), `INSERT INTO fastpmactivity VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		ae.ID, ae.Hostname, ae.Githash, ae.Version,
		ae.GoVersion, ae.CPUs, ae.Start.Format(timeFormat), ae.End.Format(timeFormat),
	); err != nil {
		db.logger.Println("Error raised on AsyncInsert into fastpmactivity ", err)
		db.err = err
	}
}

func (db *Connection) handleConnection() {
	defer db.Done()
	for msg := range db.runmsg {
		db.handleRunMessage(msg)
	}
}

func (db *Connection) handleRunMessage(m *RunMessage) {
	if !db.IsConnected() {
		return
	}
	const nowait = false
	if err := db.conn.AsyncInsert(context.Background(), `INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, m.ActivityID, m.Device, m.Isolation, m.Policy, m.Shutdown,
		m.Reads, m.Skipped, m.LastSeq, m.Mean, m.StdDev, m.Forced,
		m.Start.Format(timeFormat), m.End.Format(timeFormat),
	); err != nil {
		db.logger.Println("Error raised on AsyncInsert into runs ", err)
		db.err = err
	}
}

// RecordRun stores a finished run. It blocks until the message is accepted
// so that a following Close cannot overtake it.
func (db *Connection) RecordRun(msg *RunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	msg.ActivityID = db.activity.ID
	db.runmsg <- msg
}

// Close marks the end of the activity and disconnects. Safe on a dummy
// connection and safe to call twice.
func (db *Connection) Close() {
	db.closed.Do(func() {
		if db.runmsg != nil {
			close(db.runmsg)
		}
		db.Wait()
		if db.IsConnected() {
			db.activity.End = time.Now()
			db.logActivity()
		}
		if db.conn != nil {
			db.conn.Close()
		}
	})
}
