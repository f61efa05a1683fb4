// Package l2errors defines the small error taxonomy shared across the
// core. Only PersistenceFailure{Stage: LoadMetadata} is fatal to the
// process; every other kind is scoped to a single transaction, slot, or
// broadcast session.
package l2errors

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nodeforge/l2chain/internal/accounts"
)

// TxRejectKind enumerates why a transaction never made it into a slot.
type TxRejectKind int

const (
	BadSanitize TxRejectKind = iota
	QueueFull
	MissingAccount
	ProcessorError
)

func (k TxRejectKind) String() string {
	switch k {
	case BadSanitize:
		return "BadSanitize"
	case QueueFull:
		return "QueueFull"
	case MissingAccount:
		return "MissingAccount"
	case ProcessorError:
		return "ProcessorError"
	default:
		return "Unknown"
	}
}

// TxRejected is surfaced to the submitter; it is never fatal.
type TxRejected struct {
	Kind TxRejectKind
	Code string
}

func (e *TxRejected) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tx rejected: %s (%s)", e.Kind, e.Code)
	}
	return fmt.Sprintf("tx rejected: %s", e.Kind)
}

// SlotOverrun records a slot that exceeded its tick budget. Logged, never
// fatal — the next tick fires on schedule regardless.
type SlotOverrun struct {
	Slot   accounts.Slot
	TookMs int64
}

func (e *SlotOverrun) Error() string {
	return fmt.Sprintf("slot %d overran tick budget: took %dms", e.Slot, e.TookMs)
}

// PersistenceStage names the persistence operation that failed.
type PersistenceStage int

const (
	StageSnapshot PersistenceStage = iota
	StageLoadMetadata
	StageFlush
)

func (s PersistenceStage) String() string {
	switch s {
	case StageSnapshot:
		return "Snapshot"
	case StageLoadMetadata:
		return "LoadMetadata"
	case StageFlush:
		return "Flush"
	default:
		return "Unknown"
	}
}

// PersistenceFailure wraps an underlying I/O error with the stage it
// occurred in. Only Stage == StageLoadMetadata is fatal at startup;
// Snapshot and Flush failures are logged and retried on the next interval.
type PersistenceFailure struct {
	Stage PersistenceStage
	Err   error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persistence failure at stage %s: %v", e.Stage, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// Fatal reports whether this failure must abort process startup.
func (e *PersistenceFailure) Fatal() bool {
	return e.Stage == StageLoadMetadata
}

// WrapPersistence wraps err with stack context via github.com/pkg/errors
// and tags it with stage for callers at storage boundaries.
func WrapPersistence(stage PersistenceStage, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceFailure{Stage: stage, Err: errors.WithStack(err)}
}

// BroadcastLagged records a follower session that could not keep up; the
// follower is expected to self-heal via SyncRequest.
type BroadcastLagged struct {
	FollowerID string
	Dropped    uint64
}

func (e *BroadcastLagged) Error() string {
	return fmt.Sprintf("follower %s lagged, dropped %d frames", e.FollowerID, e.Dropped)
}

// FraudDetected is raised by a follower on divergence; on the leader it is
// only logged — reaction policy is deployment-defined.
type FraudDetected struct {
	Slot   accounts.Slot
	Reason string
}

func (e *FraudDetected) Error() string {
	return fmt.Sprintf("fraud detected at slot %d: %s", e.Slot, e.Reason)
}

// ChainMismatch describes a follower-side disagreement between an expected
// and a received root. The follower client does not construct it: it
// reports root and hash verification failures as FraudDetected and moves
// to Disconnected.
type ChainMismatch struct {
	ExpectedRoot [32]byte
	GotRoot      [32]byte
}

func (e *ChainMismatch) Error() string {
	return fmt.Sprintf("chain mismatch: expected %x, got %x", e.ExpectedRoot, e.GotRoot)
}
