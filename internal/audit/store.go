// Package audit persists an execution-domain audit trail. Recording
// is asynchronous: the relay enqueues without blocking and a single
// writer goroutine drains batches into Postgres. Execution volume is
// orders of magnitude below market data, so a database sink is
// sustainable for this domain only.
package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/protocol"
	"main/pkg/conn"
)

// Record is one accepted execution message.
type Record struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Domain      uint8
	Source      uint8
	Flags       uint8
	Sequence    uint64
	Timestamp   uint64
	PayloadSize uint32
	Payload     []byte `gorm:"type:bytea"`
	CreatedAt   time.Time
}

// TableName keeps the table name stable across gorm naming changes.
func (Record) TableName() string { return "execution_audit" }

const (
	defaultQueueSize = 4096
	flushBatchSize   = 128
	flushInterval    = 250 * time.Millisecond
)

// Store buffers audit records and writes them to Postgres.
type Store struct {
	client *conn.Client
	queue  chan Record
	drops  atomic.Uint64
	done   chan struct{}
	flush  func(batch []Record)
}

// Open connects to Postgres and migrates the audit table.
func Open(dsn string, queueSize int) (*Store, error) {
	client, err := conn.New(conn.Option{ConnString: dsn})
	if err != nil {
		return nil, err
	}
	if err := client.DB().AutoMigrate(&Record{}); err != nil {
		_ = client.Close()
		return nil, err
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &Store{
		client: client,
		queue:  make(chan Record, queueSize),
		done:   make(chan struct{}),
	}
	s.flush = s.write
	return s, nil
}

// Record implements the relay audit sink. It never blocks: when the
// queue is full the record is dropped and counted.
func (s *Store) Record(h protocol.HeaderFields, payload []byte) {
	if s == nil {
		return
	}
	rec := Record{
		Domain:      h.Domain,
		Source:      h.Source,
		Flags:       h.Flags,
		Sequence:    h.Sequence,
		Timestamp:   h.Timestamp,
		PayloadSize: h.PayloadSize,
		Payload:     append([]byte(nil), payload...),
	}
	select {
	case s.queue <- rec:
	default:
		s.drops.Add(1)
	}
}

// Drops returns how many records were lost to a full queue.
func (s *Store) Drops() uint64 {
	if s == nil {
		return 0
	}
	return s.drops.Load()
}

// Run drains the queue until ctx is done, flushing in small batches.
func (s *Store) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, flushBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Final sweep of whatever is already queued.
			for {
				select {
				case rec := <-s.queue:
					batch = append(batch, rec)
					if len(batch) == flushBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) == flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Store) write(batch []Record) {
	if err := s.client.DB().Session(&gorm.Session{SkipHooks: true}).Create(&batch).Error; err != nil {
		logs.Errorf("audit: write batch of %d, err: %+v", len(batch), err)
	}
}

// Close waits for the writer to finish and releases the connection
// pool. Call after cancelling the Run context.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	<-s.done
	return s.client.Close()
}
