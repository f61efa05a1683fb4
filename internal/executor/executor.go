// Package executor implements the Tick Executor: the single serialization
// point for state mutation. Each tick it drains the admission queue, runs
// every transaction through a Processor against a scoped AccountView,
// merges the results into a per-slot pending-write map in first-touch
// order, seals a StateChange, commits to the account store, and hands off
// to broadcast and notification.
//
// The run loop is a straight-line, no-task-scheduling body: drain queue,
// process batch, measure timing. Panics inside a single transaction are
// recovered so that one bad unit of work never takes the whole process
// down with it.
package executor

import (
	"fmt"
	"time"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/kv"
	"github.com/nodeforge/l2chain/internal/l2errors"
	"github.com/nodeforge/l2chain/internal/notify"
	"github.com/nodeforge/l2chain/internal/processor"
	"github.com/nodeforge/l2chain/internal/queue"
	"github.com/nodeforge/l2chain/internal/statechange"
)

// MaxTxsPerSlot is the default bound on how many queued transactions one
// tick will drain and execute; callers may override it via
// Executor.SetMaxTxsPerSlot.
const MaxTxsPerSlot = 4096

// pendingWrite tracks a key's latest value within the in-progress slot,
// plus the order it was first touched, so the final writes sequence is
// first-touch-ordered regardless of which transaction most recently wrote
// it — last-writer-wins within the slot, insertion order on first touch.
type pendingWrite struct {
	order   int
	account *accounts.Account
}

// Clock is the subset of internal/clock.Clock the executor needs; kept as
// an interface so tests can drive slots without a real ticker.
type Clock interface {
	CurrentSlot() accounts.Slot
	CurrentBlockhash() [32]byte
}

// Sink receives a sealed, non-empty StateChange for broadcast. Satisfied
// by *internal/broadcast.Server.
type Sink interface {
	Publish(sc *statechange.StateChange)
}

// TickResult summarizes one tick's outcome, mainly for metrics and tests.
type TickResult struct {
	Slot         accounts.Slot
	TxCount      int
	WriteCount   int
	Broadcast    bool
	Took         time.Duration
	RejectedTxs  []l2errors.TxRejected
	RejectedLogs []string
}

// Executor runs the per-tick drain/execute/hash/commit/publish body.
type Executor struct {
	store       *kv.Store
	q           *queue.Queue
	log         *statechange.Log
	registry    processor.Processor
	notifier    *notify.Notifier
	broadcast   Sink
	env         func(slot accounts.Slot, blockhash [32]byte, ts uint64) *processor.Environment
	maxTxsSlot  int
	maxDataLen  int
	onOverrun   func(l2errors.SlotOverrun)
	tickBudget  time.Duration
}

// New returns an Executor wired to the given store, queue, log, and
// processor registry. env builds the per-slot Environment (builtins,
// derived-key predicate); onOverrun is invoked (non-blocking, best effort)
// when a tick exceeds tickBudget — pass 0 to disable overrun detection.
func New(
	store *kv.Store,
	q *queue.Queue,
	log *statechange.Log,
	registry processor.Processor,
	notifier *notify.Notifier,
	broadcast Sink,
	env func(slot accounts.Slot, blockhash [32]byte, ts uint64) *processor.Environment,
	tickBudget time.Duration,
	onOverrun func(l2errors.SlotOverrun),
) *Executor {
	return &Executor{
		store:      store,
		q:          q,
		log:        log,
		registry:   registry,
		notifier:   notifier,
		broadcast:  broadcast,
		env:        env,
		maxTxsSlot: MaxTxsPerSlot,
		tickBudget: tickBudget,
		onOverrun:  onOverrun,
	}
}

// SetMaxDataLen bounds Account.Data for every committed write; 0 disables
// the check.
func (e *Executor) SetMaxDataLen(n int) { e.maxDataLen = n }

// SetMaxTxsPerSlot overrides how many queued transactions one tick will
// drain and execute; n<=0 resets it to MaxTxsPerSlot.
func (e *Executor) SetMaxTxsPerSlot(n int) {
	if n <= 0 {
		n = MaxTxsPerSlot
	}
	e.maxTxsSlot = n
}

// RunTick executes one slot. timestampMs is the wall-clock time the slot
// began; blockhash is the per-tick fresh value from the slot clock. It is
// the caller's (clock.Run's onTick callback, typically) responsibility to
// invoke this synchronously, once per tick, never concurrently with
// another call.
func (e *Executor) RunTick(slot accounts.Slot, blockhash [32]byte, timestampMs uint64) TickResult {
	start := time.Now()

	batch := e.q.DrainUpTo(e.maxTxsSlot)
	result := TickResult{Slot: slot, TxCount: len(batch)}

	if len(batch) == 0 {
		result.Took = time.Since(start)
		e.checkOverrun(slot, result.Took)
		return result
	}

	env := e.env(slot, blockhash, timestampMs)
	sc := statechange.New(slot, e.log.LastRoot(), timestampMs)

	pending := make(map[accounts.Key]*pendingWrite)
	order := 0

	for _, tx := range batch {
		res, rejectErr := e.runOne(tx, env)
		if rejectErr != nil {
			result.RejectedTxs = append(result.RejectedTxs, *rejectErr)
			continue
		}
		for _, t := range res.Touched {
			if p, ok := pending[t.Key]; ok {
				p.account = t.Account
			} else {
				pending[t.Key] = &pendingWrite{order: order, account: t.Account}
				order++
			}
		}
		result.RejectedLogs = append(result.RejectedLogs, res.Logs...)
	}

	if len(pending) == 0 {
		// An empty-write slot is not broadcast and does not advance
		// last_sealed_root.
		result.Took = time.Since(start)
		e.checkOverrun(slot, result.Took)
		return result
	}

	writes := orderedWrites(pending)
	for _, w := range writes {
		sc.AppendWrite(w)
	}
	sc.Seal()

	for _, w := range writes {
		acct := &accounts.Account{
			Lamports: w.Lamports,
			Owner:    w.Owner,
			Data:     w.Data,
		}
		if prev := e.store.Get(w.Key); prev != nil {
			acct.Executable = prev.Executable
			acct.RentEpoch = prev.RentEpoch
		}
		e.store.Put(w.Key, acct, slot)
		e.notifier.Notify(w.Key, slot, acct)
	}

	e.log.Append(sc)
	if e.broadcast != nil {
		e.broadcast.Publish(sc)
	}

	result.WriteCount = len(writes)
	result.Broadcast = true
	result.Took = time.Since(start)
	e.checkOverrun(slot, result.Took)
	return result
}

// orderedWrites sorts pending by first-touch order, producing the
// canonical writes sequence submitted transactions observe.
func orderedWrites(pending map[accounts.Key]*pendingWrite) []statechange.AccountWrite {
	type indexed struct {
		order int
		key   accounts.Key
		w     *pendingWrite
	}
	tmp := make([]indexed, 0, len(pending))
	for k, w := range pending {
		tmp = append(tmp, indexed{order: w.order, key: k, w: w})
	}
	// insertion sort is fine: slot batches are bounded by MaxTxsPerSlot and
	// this runs once per non-empty slot.
	for i := 1; i < len(tmp); i++ {
		for j := i; j > 0 && tmp[j].order < tmp[j-1].order; j-- {
			tmp[j], tmp[j-1] = tmp[j-1], tmp[j]
		}
	}
	out := make([]statechange.AccountWrite, len(tmp))
	for i, t := range tmp {
		out[i] = statechange.AccountWrite{
			Key:      t.key,
			Data:     t.w.account.Data,
			Lamports: t.w.account.Lamports,
			Owner:    t.w.account.Owner,
		}
	}
	return out
}

// runOne executes a single transaction: builds its AccountView, invokes
// the registry, re-validates Touched against the declared key set (the
// core never trusts the processor to have respected it), and converts a
// panic inside the processor into ErrInternalAbort without aborting the
// slot.
func (e *Executor) runOne(tx queue.Transaction, env *processor.Environment) (res processor.ExecutionResult, rejected *l2errors.TxRejected) {
	defer func() {
		if r := recover(); r != nil {
			rejected = &l2errors.TxRejected{
				Kind: l2errors.ProcessorError,
				Code: fmt.Sprintf("InternalAbort: %v", r),
			}
			res = processor.ExecutionResult{Status: processor.StatusErr, ErrKind: processor.ErrInternalAbort}
		}
	}()

	view := processor.NewAccountView(tx.DeclaredKeys, func(key accounts.Key) *accounts.Account {
		if a := e.store.Get(key); a != nil {
			return a
		}
		return processor.SynthesizeMissing(env, key, env.HostingProgram(key))
	})

	res = e.registry.Process(processor.Transaction{DeclaredKeys: tx.DeclaredKeys, Payload: tx.Payload}, view, env)
	if res.Status != processor.StatusOk {
		return res, &l2errors.TxRejected{Kind: l2errors.ProcessorError, Code: res.Code}
	}
	if err := processor.ValidateTouched(tx.DeclaredKeys, res); err != nil {
		return res, &l2errors.TxRejected{Kind: l2errors.ProcessorError, Code: err.Error()}
	}
	for _, t := range res.Touched {
		if err := t.Account.Validate(e.maxDataLen); err != nil {
			return res, &l2errors.TxRejected{Kind: l2errors.BadSanitize, Code: err.Error()}
		}
	}
	return res, nil
}

func (e *Executor) checkOverrun(slot accounts.Slot, took time.Duration) {
	if e.tickBudget <= 0 || e.onOverrun == nil {
		return
	}
	if took > e.tickBudget {
		e.onOverrun(l2errors.SlotOverrun{Slot: slot, TookMs: took.Milliseconds()})
	}
}
