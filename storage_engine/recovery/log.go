// Package recovery implements the logical write-ahead log and the
// REDO/UNDO recovery algorithm of spec.md 4.8, operating on a single
// in-memory key-value map that stands in for the database's state for
// recovery-testing purposes.
package recovery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"coredb/types"
)

// RecordType discriminates a LogRecord's variant. Per spec.md 9's design
// note, this is a tagged-variant discriminant, not a reinterpret-cast flag.
type RecordType uint8

const (
	RecordBegin RecordType = iota
	RecordCommit
	RecordAbort
	RecordInsert
	RecordDelete
	RecordUpdate
)

func (t RecordType) String() string {
	switch t {
	case RecordBegin:
		return "BEGIN"
	case RecordCommit:
		return "COMMIT"
	case RecordAbort:
		return "ABORT"
	case RecordInsert:
		return "INSERT"
	case RecordDelete:
		return "DELETE"
	case RecordUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// LogRecord is one entry in the logical log. Key2/Val2 are only meaningful
// for Update (the new key/value); Key1/Val1 hold Insert/Delete's operand,
// or Update's old key/value.
type LogRecord struct {
	LSN     types.LSN   `msgpack:"lsn"`
	PrevLSN types.LSN   `msgpack:"prev_lsn"`
	TxnID   types.TxnID `msgpack:"txn_id"`
	Type    RecordType  `msgpack:"type"`
	Key1    string      `msgpack:"key1"`
	Val1    int32       `msgpack:"val1"`
	Key2    string      `msgpack:"key2"`
	Val2    int32       `msgpack:"val2"`
}

// Encode returns rec's msgpack wire encoding, per spec.md section 6's call
// for a stable on-disk encoding the source never defines.
func (rec *LogRecord) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("recovery: encode log record: %w", err)
	}
	return b, nil
}

// LogManager issues log records for one database's transactions.
// next_lsn and the per-transaction previous-LSN map are instance state
// here, not process-wide globals — spec.md 9's redesign note: tests that
// want a fresh LSN counter construct a fresh LogManager.
type LogManager struct {
	mu      sync.Mutex
	nextLSN types.LSN
	prevLSN map[types.TxnID]types.LSN

	// buf accumulates every record's msgpack encoding in append order,
	// giving the logical log an actual byte-stream wire format instead of
	// a Go slice that only ever exists in memory. msgpack is
	// self-delimiting, so sequential Decode calls against buf recover the
	// same records without a length prefix.
	buf     bytes.Buffer
	records []*LogRecord
}

// NewLogManager returns a LogManager whose LSN counter starts at 0.
func NewLogManager() *LogManager {
	return &LogManager{prevLSN: make(map[types.TxnID]types.LSN)}
}

func (lm *LogManager) append(txnID types.TxnID, typ RecordType, key1 string, val1 int32, key2 string, val2 int32) *LogRecord {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	prev, ok := lm.prevLSN[txnID]
	if !ok {
		prev = types.InvalidLSN
	}
	rec := &LogRecord{
		LSN:     lm.nextLSN,
		PrevLSN: prev,
		TxnID:   txnID,
		Type:    typ,
		Key1:    key1,
		Val1:    val1,
		Key2:    key2,
		Val2:    val2,
	}
	lm.nextLSN++
	lm.prevLSN[txnID] = rec.LSN
	lm.records = append(lm.records, rec)

	if encoded, err := rec.Encode(); err == nil {
		lm.buf.Write(encoded)
	}
	return rec
}

func (lm *LogManager) Begin(txnID types.TxnID) *LogRecord  { return lm.append(txnID, RecordBegin, "", 0, "", 0) }
func (lm *LogManager) Commit(txnID types.TxnID) *LogRecord { return lm.append(txnID, RecordCommit, "", 0, "", 0) }
func (lm *LogManager) Abort(txnID types.TxnID) *LogRecord  { return lm.append(txnID, RecordAbort, "", 0, "", 0) }

func (lm *LogManager) Insert(txnID types.TxnID, key string, value int32) *LogRecord {
	return lm.append(txnID, RecordInsert, key, value, "", 0)
}

func (lm *LogManager) Delete(txnID types.TxnID, key string, value int32) *LogRecord {
	return lm.append(txnID, RecordDelete, key, value, "", 0)
}

func (lm *LogManager) Update(txnID types.TxnID, oldKey string, oldValue int32, newKey string, newValue int32) *LogRecord {
	return lm.append(txnID, RecordUpdate, oldKey, oldValue, newKey, newValue)
}

// LastLSN returns the LSN of the most recent record appended for txnID, or
// types.InvalidLSN if txnID has no records yet. Used to build a
// Checkpoint.ActiveTxns snapshot without scanning the full record list.
func (lm *LogManager) LastLSN(txnID types.TxnID) types.LSN {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lsn, ok := lm.prevLSN[txnID]
	if !ok {
		return types.InvalidLSN
	}
	return lsn
}

// Records returns a copy of every record appended so far, in ascending LSN
// order (append order is LSN order — LSNs only ever increase).
func (lm *LogManager) Records() []*LogRecord {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]*LogRecord, len(lm.records))
	copy(out, lm.records)
	return out
}

// Bytes returns a copy of the accumulated msgpack-encoded log stream,
// suitable for handing to a WAL segment for durable storage.
func (lm *LogManager) Bytes() []byte {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]byte, lm.buf.Len())
	copy(out, lm.buf.Bytes())
	return out
}

// Drain returns every byte accumulated since the last Drain call and
// resets the internal buffer — the handoff a WAL segment uses to flush
// newly appended records to disk without rewriting what it already wrote.
func (lm *LogManager) Drain() []byte {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]byte, lm.buf.Len())
	copy(out, lm.buf.Bytes())
	lm.buf.Reset()
	return out
}

// DecodeLog decodes a msgpack byte stream produced by LogManager.Bytes
// back into its ordered records.
func DecodeLog(buf []byte) ([]*LogRecord, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(buf))
	var out []*LogRecord
	for {
		var rec LogRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("recovery: decode log stream: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}
