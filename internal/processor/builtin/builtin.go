// Package builtin provides a small reference Processor implementation:
// two builtin programs (memo and lamport transfer) dispatched by program
// key. It exists to exercise internal/processor end to end and as a worked
// example for writing further programs against the same Processor
// interface.
package builtin

import (
	"encoding/binary"
	"fmt"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/mathutil"
	"github.com/nodeforge/l2chain/internal/processor"
)

// MemoProgramKey is the well-known owner key for accounts mutated by the
// memo program (first byte 0x01, rest zero — a placeholder scheme; a real
// deployment would derive these from genesis config).
var MemoProgramKey = accounts.Key{0x01}

// TransferProgramKey is the owner key for the lamport-transfer program.
var TransferProgramKey = accounts.Key{0x02}

// Registry dispatches by the transaction payload's leading 32-byte program
// id to one of the registered builtins, mirroring processor.rs's
// register_builtins/add_builtin pattern without the SVM program cache.
type Registry struct {
	programs map[accounts.Key]processor.Processor
}

// NewRegistry returns a Registry preloaded with the memo and transfer
// programs.
func NewRegistry() *Registry {
	return &Registry{
		programs: map[accounts.Key]processor.Processor{
			MemoProgramKey:     MemoProgram{},
			TransferProgramKey: TransferProgram{},
		},
	}
}

// Register adds or replaces the Processor for programKey.
func (r *Registry) Register(programKey accounts.Key, p processor.Processor) {
	r.programs[programKey] = p
}

// Dispatch routes tx to the program named by its first 32 payload bytes.
func (r *Registry) Dispatch(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
	if len(tx.Payload) < 32 {
		return processor.ExecutionResult{
			Status:  processor.StatusErr,
			ErrKind: processor.ErrProgramError,
			Code:    "payload too short to carry a program id",
		}
	}
	var programKey accounts.Key
	copy(programKey[:], tx.Payload[:32])
	p, ok := r.programs[programKey]
	if !ok {
		return processor.ExecutionResult{
			Status:  processor.StatusErr,
			ErrKind: processor.ErrProgramError,
			Code:    fmt.Sprintf("unknown program %x", programKey),
		}
	}
	return p.Process(processor.Transaction{DeclaredKeys: tx.DeclaredKeys, Payload: tx.Payload[32:]}, view, env)
}

// Process makes Registry a processor.Processor by routing tx through
// Dispatch.
func (r *Registry) Process(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
	return r.Dispatch(tx, view, env)
}

// MemoProgram writes its instruction payload verbatim into the data of the
// single declared key, leaving lamports and owner untouched. Grounded on
// world-program's data-replacement style in process_update_world (load,
// mutate one field, serialize back).
type MemoProgram struct{}

func (MemoProgram) Process(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
	if len(tx.DeclaredKeys) != 1 {
		return processor.ExecutionResult{
			Status:  processor.StatusErr,
			ErrKind: processor.ErrProgramError,
			Code:    "memo: expected exactly one declared key",
		}
	}
	key := tx.DeclaredKeys[0]
	current, err := view.Get(key)
	if err != nil {
		return processor.ExecutionResult{Status: processor.StatusErr, ErrKind: processor.ErrProgramError, Code: err.Error()}
	}
	updated := current.Clone()
	updated.Data = append([]byte(nil), tx.Payload...)
	if err := view.Put(key, updated); err != nil {
		return processor.ExecutionResult{Status: processor.StatusErr, ErrKind: processor.ErrProgramError, Code: err.Error()}
	}
	return processor.ExecutionResult{
		Status:  processor.StatusOk,
		Logs:    []string{fmt.Sprintf("memo: wrote %d bytes to %x", len(tx.Payload), key)},
		Touched: []processor.Touched{{Key: key, Account: updated}},
	}
}

// TransferProgram moves lamports from the first declared key to the
// second. Payload is the u64 LE amount. Grounded on the gasless-transfer
// shape of process_leave_world's lamport move (zero the source, credit
// the destination) but without account closure.
type TransferProgram struct{}

func (TransferProgram) Process(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
	if len(tx.DeclaredKeys) != 2 {
		return processor.ExecutionResult{
			Status:  processor.StatusErr,
			ErrKind: processor.ErrProgramError,
			Code:    "transfer: expected exactly two declared keys (from, to)",
		}
	}
	if len(tx.Payload) < 8 {
		return processor.ExecutionResult{
			Status:  processor.StatusErr,
			ErrKind: processor.ErrProgramError,
			Code:    "transfer: payload too short for amount",
		}
	}
	amount := binary.LittleEndian.Uint64(tx.Payload)
	from, to := tx.DeclaredKeys[0], tx.DeclaredKeys[1]

	fromAcct, err := view.Get(from)
	if err != nil {
		return processor.ExecutionResult{Status: processor.StatusErr, ErrKind: processor.ErrProgramError, Code: err.Error()}
	}
	if fromAcct.Lamports < amount {
		return processor.ExecutionResult{
			Status:  processor.StatusErr,
			ErrKind: processor.ErrProgramError,
			Code:    "transfer: insufficient lamports",
		}
	}
	toAcct, err := view.Get(to)
	if err != nil {
		return processor.ExecutionResult{Status: processor.StatusErr, ErrKind: processor.ErrProgramError, Code: err.Error()}
	}

	credited, overflowed := mathutil.SafeAdd(toAcct.Lamports, amount)
	if overflowed {
		return processor.ExecutionResult{
			Status:  processor.StatusErr,
			ErrKind: processor.ErrProgramError,
			Code:    "transfer: destination balance would overflow",
		}
	}

	updatedFrom := fromAcct.Clone()
	updatedFrom.Lamports -= amount
	updatedTo := toAcct.Clone()
	updatedTo.Lamports = credited

	if err := view.Put(from, updatedFrom); err != nil {
		return processor.ExecutionResult{Status: processor.StatusErr, ErrKind: processor.ErrProgramError, Code: err.Error()}
	}
	if err := view.Put(to, updatedTo); err != nil {
		return processor.ExecutionResult{Status: processor.StatusErr, ErrKind: processor.ErrProgramError, Code: err.Error()}
	}

	return processor.ExecutionResult{
		Status: processor.StatusOk,
		Logs:   []string{fmt.Sprintf("transfer: %d lamports from %x to %x", amount, from, to)},
		Touched: []processor.Touched{
			{Key: from, Account: updatedFrom},
			{Key: to, Account: updatedTo},
		},
	}
}
