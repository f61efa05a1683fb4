// Package processor defines the instruction processor boundary: an opaque,
// pluggable executor invoked once per transaction against a scoped view of
// the account store. The processor implementation itself lives outside
// this package — it only fixes the interface, the declared-key-set
// enforcement, and the missing-account synthesis rule that the Tick
// Executor relies on.
package processor

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/nodeforge/l2chain/internal/accounts"
)

// Status is the outcome of a single transaction's execution.
type Status int

const (
	StatusOk Status = iota
	StatusErr
)

// ErrKind enumerates processor-side failure kinds (distinct from the
// submission-side l2errors.TxRejectKind, which wraps these).
type ErrKind int

const (
	ErrNone ErrKind = iota
	ErrInternalAbort
	ErrDeclaredKeyViolation
	ErrProgramError
)

func (k ErrKind) String() string {
	switch k {
	case ErrInternalAbort:
		return "InternalAbort"
	case ErrDeclaredKeyViolation:
		return "DeclaredKeyViolation"
	case ErrProgramError:
		return "ProgramError"
	default:
		return "None"
	}
}

// Touched is one account mutation a processor invocation produced, in the
// order the processor itself touched it.
type Touched struct {
	Key     accounts.Key
	Account *accounts.Account
}

// ExecutionResult is what a Processor returns for one transaction.
type ExecutionResult struct {
	Status  Status
	ErrKind ErrKind
	Code    string
	Logs    []string
	Touched []Touched
}

// Transaction is the sanitized unit of work handed to a Processor. Its
// shape beyond DeclaredKeys/Payload is processor-specific and opaque to
// the core, matching queue.Transaction.
type Transaction struct {
	DeclaredKeys []accounts.Key
	Payload      []byte
}

// AccountView is the scoped, mutable borrow of account state a Processor
// is allowed to read and write. It exposes only DeclaredKeys: Get and Put
// reject any other key, and the core separately re-checks every Touched
// entry against the declared set, so a Processor that bypasses the view
// still cannot commit an undeclared key.
type AccountView struct {
	declared mapset.Set[accounts.Key]
	loaded   map[accounts.Key]*accounts.Account
	// Loader resolves a key this view has not already cached, synthesizing
	// a default account per the missing-account rule when absent from the
	// store entirely.
	Loader func(key accounts.Key) *accounts.Account
}

// NewAccountView returns a view scoped to declaredKeys. loader is called at
// most once per key, on first access.
func NewAccountView(declaredKeys []accounts.Key, loader func(accounts.Key) *accounts.Account) *AccountView {
	return &AccountView{
		declared: mapset.NewSet(declaredKeys...),
		loaded:   make(map[accounts.Key]*accounts.Account, len(declaredKeys)),
		Loader:   loader,
	}
}

// ErrKeyNotDeclared is returned by Get/Put for a key outside the view's
// declared set.
var ErrKeyNotDeclared = fmt.Errorf("processor: key not in declared set")

// Get returns the current value for key within this view, loading it on
// first access via Loader.
func (v *AccountView) Get(key accounts.Key) (*accounts.Account, error) {
	if !v.declared.Contains(key) {
		return nil, ErrKeyNotDeclared
	}
	if a, ok := v.loaded[key]; ok {
		return a, nil
	}
	a := v.Loader(key)
	v.loaded[key] = a
	return a, nil
}

// Put records a new value for key within this view.
func (v *AccountView) Put(key accounts.Key, a *accounts.Account) error {
	if !v.declared.Contains(key) {
		return ErrKeyNotDeclared
	}
	v.loaded[key] = a
	return nil
}

// DeclaredKeys returns the view's declared key set as a slice, in no
// particular order.
func (v *AccountView) DeclaredKeys() []accounts.Key {
	return v.declared.ToSlice()
}

// Environment carries the per-tick context a Processor needs: the
// builtin-program registry, sysvar-like records, and the derived-key
// predicate. It is rebuilt once per slot by the Tick Executor, not per
// transaction.
type Environment struct {
	Slot        accounts.Slot
	Blockhash   [32]byte
	TimestampMs uint64
	Builtins    map[accounts.Key]BuiltinProgram
	// IsDerivedFunc is the externally-supplied is_derived(key) predicate.
	IsDerivedFunc func(key accounts.Key) bool
	// HostingProgramFunc resolves the BuiltinProgram that should own a
	// derived key when it is missing from the store, e.g. by inspecting
	// which program's seed space the key falls under. Required only when
	// IsDerivedFunc can return true; a nil value with a true IsDerived
	// result synthesizes the zero BuiltinProgram (owner is the zero key,
	// zero-length data).
	HostingProgramFunc func(key accounts.Key) BuiltinProgram
}

// HostingProgram resolves the program that should own key if key turns
// out to be missing and derived.
func (e *Environment) HostingProgram(key accounts.Key) BuiltinProgram {
	if e.HostingProgramFunc == nil {
		return BuiltinProgram{}
	}
	return e.HostingProgramFunc(key)
}

// IsDerived reports whether key is a program-derived address, per the
// externally-supplied predicate. A nil IsDerivedFunc means "no key is
// derived" — every missing account synthesizes as system-owned.
func (e *Environment) IsDerived(key accounts.Key) bool {
	if e.IsDerivedFunc == nil {
		return false
	}
	return e.IsDerivedFunc(key)
}

// BuiltinProgram is a registered executable key with a declared maximum
// record size, used to size synthesized derived accounts.
type BuiltinProgram struct {
	ProgramKey  accounts.Key
	MaxDataSize int
}

// SystemOwner is the owner assigned to a synthesized non-derived missing
// account.
var SystemOwner = accounts.Key{}

// SynthesizeMissing builds the default account returned for a key absent
// from the store entirely, per the program-aware rule: a derived key is
// owned by its hosting program with pre-allocated space equal to that
// program's declared max record size; a non-derived key gets the system
// owner with zero-length data.
//
// hostingProgram is resolved by the caller (typically by inspecting which
// builtin program's seed space key belongs to); owner/maxSize of the zero
// value falls back to the non-derived case.
func SynthesizeMissing(env *Environment, key accounts.Key, hostingProgram BuiltinProgram) *accounts.Account {
	if env.IsDerived(key) {
		return &accounts.Account{
			Owner: hostingProgram.ProgramKey,
			Data:  make([]byte, hostingProgram.MaxDataSize),
		}
	}
	return &accounts.Account{
		Owner: SystemOwner,
		Data:  nil,
	}
}

// Processor is the pluggable instruction-execution boundary. The core
// treats it as a pure function of (tx, view, env) — it never trusts a
// Processor's return value to respect declared keys on its own; the Tick
// Executor re-validates Touched against view.DeclaredKeys() before
// committing.
type Processor interface {
	Process(tx Transaction, view *AccountView, env *Environment) ExecutionResult
}

// ValidateTouched checks result.Touched against declared, returning an
// error wrapping ErrKeyNotDeclared if any touched key falls outside the
// set the transaction itself declared — core-side enforcement that does
// not trust what the Processor claims.
func ValidateTouched(declared []accounts.Key, result ExecutionResult) error {
	set := mapset.NewSet(declared...)
	for _, t := range result.Touched {
		if !set.Contains(t.Key) {
			return fmt.Errorf("%w: %x", ErrKeyNotDeclared, t.Key)
		}
	}
	return nil
}
