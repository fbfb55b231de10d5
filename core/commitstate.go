package core

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// MaxWriterID bounds writer instance ids so that a (checkpoint, writer) pair
// packs into a single uint64 bitmap entry: checkpoint id in the high 48 bits,
// writer id in the low 16.
const MaxWriterID = 1<<16 - 1

// CommitState is the coordinator's persisted, checkpointed state: the highest
// checkpoint id already committed to the table, and the set of
// (checkpoint-id, writer-id) pairs received for in-flight checkpoints.
// Committed checkpoint ids are monotonically increasing and commit is
// idempotent for a given id.
type CommitState struct {
	LastCommitted int64
	Seen          *roaring64.Bitmap
}

// NewCommitState returns an empty state with no committed checkpoint.
func NewCommitState() *CommitState {
	return &CommitState{LastCommitted: 0, Seen: roaring64.New()}
}

func packPair(checkpointID int64, writerID int) (uint64, error) {
	if checkpointID < 0 {
		return 0, fmt.Errorf("negative checkpoint id %d", checkpointID)
	}
	if writerID < 0 || writerID > MaxWriterID {
		return 0, fmt.Errorf("writer id %d out of range [0, %d]", writerID, MaxWriterID)
	}
	return uint64(checkpointID)<<16 | uint64(writerID), nil
}

// AlreadySeen reports whether a write result for the pair was received before.
func (cs *CommitState) AlreadySeen(checkpointID int64, writerID int) (bool, error) {
	pair, err := packPair(checkpointID, writerID)
	if err != nil {
		return false, err
	}
	return cs.Seen.Contains(pair), nil
}

// MarkSeen records that a write result for the pair has been received.
func (cs *CommitState) MarkSeen(checkpointID int64, writerID int) error {
	pair, err := packPair(checkpointID, writerID)
	if err != nil {
		return err
	}
	cs.Seen.Add(pair)
	return nil
}

// Advance marks the checkpoint as committed and prunes seen pairs that can no
// longer be replayed usefully: dedup for committed checkpoints is handled by
// the LastCommitted watermark alone.
func (cs *CommitState) Advance(checkpointID int64) error {
	if checkpointID <= cs.LastCommitted {
		return fmt.Errorf("commit for checkpoint %d is not after last committed %d", checkpointID, cs.LastCommitted)
	}
	cs.LastCommitted = checkpointID
	cs.Seen.RemoveRange(0, (uint64(checkpointID)+1)<<16)
	return nil
}

// Clone returns a deep copy, used when handing state to concurrent readers.
func (cs *CommitState) Clone() *CommitState {
	return &CommitState{LastCommitted: cs.LastCommitted, Seen: cs.Seen.Clone()}
}
