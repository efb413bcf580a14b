package recovery

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"coredb/types"
)

// Checkpoint is a recovery point: the log position already known durable,
// which transactions were in flight at that position (txn id -> its last
// LSN), and the database state as of that position.
type Checkpoint struct {
	CheckpointLSN types.LSN                 `msgpack:"checkpoint_lsn"`
	ActiveTxns    map[types.TxnID]types.LSN `msgpack:"active_txns"`
	PersistData   map[string]int32          `msgpack:"persist_data"`
}

// Encode serializes the checkpoint, including its persist_data snapshot,
// to msgpack — the Recovery Manager's one on-disk artifact per spec.md 6.
func (c Checkpoint) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("recovery: encode checkpoint: %w", err)
	}
	return b, nil
}

// DecodeCheckpoint reverses Checkpoint.Encode.
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var c Checkpoint
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return Checkpoint{}, fmt.Errorf("recovery: decode checkpoint: %w", err)
	}
	return c, nil
}
