package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/l2chain/internal/accounts"
	"github.com/nodeforge/l2chain/internal/kv"
	"github.com/nodeforge/l2chain/internal/l2errors"
	"github.com/nodeforge/l2chain/internal/notify"
	"github.com/nodeforge/l2chain/internal/processor"
	"github.com/nodeforge/l2chain/internal/queue"
	"github.com/nodeforge/l2chain/internal/statechange"
)

type fakeSink struct {
	published []*statechange.StateChange
}

func (f *fakeSink) Publish(sc *statechange.StateChange) {
	f.published = append(f.published, sc)
}

type echoProcessor struct {
	process func(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult
}

func (p echoProcessor) Process(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
	return p.process(tx, view, env)
}

func newTestExecutor(reg processor.Processor, sink Sink) (*Executor, *kv.Store, *queue.Queue, *statechange.Log) {
	store := kv.New()
	q := queue.New(16)
	log := statechange.NewLog()
	n := notify.New(4)
	env := func(slot accounts.Slot, blockhash [32]byte, ts uint64) *processor.Environment {
		return &processor.Environment{Slot: slot, Blockhash: blockhash, TimestampMs: ts}
	}
	ex := New(store, q, log, reg, n, sink, env, 0, nil)
	return ex, store, q, log
}

// TestEmptySlotDoesNotBroadcast implements spec scenario 1: ticking with no
// submitted transactions advances nothing and does not publish.
func TestEmptySlotDoesNotBroadcast(t *testing.T) {
	sink := &fakeSink{}
	ex, _, _, log := newTestExecutor(echoProcessor{}, sink)

	result := ex.RunTick(1, [32]byte{0xAB}, 1000)

	require.Equal(t, 0, result.TxCount)
	require.False(t, result.Broadcast)
	require.Equal(t, 0, log.Len())
	require.Empty(t, sink.published)
}

// TestSingleWriteEndToEnd implements spec scenario 2: one transaction that
// touches a single account produces a sealed StateChange, a committed
// account, and a broadcast.
func TestSingleWriteEndToEnd(t *testing.T) {
	key := accounts.Key{0x11}
	owner := accounts.Key{0x22}

	reg := echoProcessor{process: func(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
		acct := &accounts.Account{Data: []byte{0xAA, 0xBB}, Lamports: 42, Owner: owner}
		require.NoError(t, view.Put(key, acct))
		return processor.ExecutionResult{
			Status:  processor.StatusOk,
			Touched: []processor.Touched{{Key: key, Account: acct}},
		}
	}}

	sink := &fakeSink{}
	ex, store, q, log := newTestExecutor(reg, sink)

	require.NoError(t, q.TrySubmit(queue.Transaction{DeclaredKeys: []accounts.Key{key}}))

	result := ex.RunTick(1, [32]byte{}, 1000)

	require.Equal(t, 1, result.TxCount)
	require.Equal(t, 1, result.WriteCount)
	require.True(t, result.Broadcast)
	require.Empty(t, result.RejectedTxs)

	require.Equal(t, 1, log.Len())
	require.Len(t, sink.published, 1)

	committed := store.Get(key)
	require.NotNil(t, committed)
	require.Equal(t, uint64(42), committed.Lamports)
	require.Equal(t, owner, committed.Owner)
	require.Equal(t, []byte{0xAA, 0xBB}, committed.Data)
}

// TestPanicInsideProcessorBecomesInternalAbort asserts a misbehaving
// processor cannot take down the tick: its panic is recovered and reported
// as a rejected transaction, with the rest of the slot still running.
func TestPanicInsideProcessorBecomesInternalAbort(t *testing.T) {
	reg := echoProcessor{process: func(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
		panic("boom")
	}}

	sink := &fakeSink{}
	ex, _, q, log := newTestExecutor(reg, sink)
	require.NoError(t, q.TrySubmit(queue.Transaction{DeclaredKeys: []accounts.Key{{0x01}}}))

	result := ex.RunTick(1, [32]byte{}, 1000)

	require.Len(t, result.RejectedTxs, 1)
	require.Contains(t, result.RejectedTxs[0].Code, "InternalAbort")
	require.False(t, result.Broadcast)
	require.Equal(t, 0, log.Len())
}

// TestDeclaredKeyViolationRejectsTransaction asserts a processor that
// touches a key outside its declared set is rejected rather than trusted.
func TestDeclaredKeyViolationRejectsTransaction(t *testing.T) {
	declared := accounts.Key{0x01}
	undeclared := accounts.Key{0x02}

	reg := echoProcessor{process: func(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
		return processor.ExecutionResult{
			Status:  processor.StatusOk,
			Touched: []processor.Touched{{Key: undeclared, Account: &accounts.Account{}}},
		}
	}}

	sink := &fakeSink{}
	ex, _, q, _ := newTestExecutor(reg, sink)
	require.NoError(t, q.TrySubmit(queue.Transaction{DeclaredKeys: []accounts.Key{declared}}))

	result := ex.RunTick(1, [32]byte{}, 1000)
	require.Len(t, result.RejectedTxs, 1)
	require.False(t, result.Broadcast)
}

func TestOverrunCallbackFiresWhenBudgetExceeded(t *testing.T) {
	store := kv.New()
	q := queue.New(16)
	log := statechange.NewLog()
	n := notify.New(4)
	env := func(slot accounts.Slot, blockhash [32]byte, ts uint64) *processor.Environment {
		return &processor.Environment{}
	}

	var overran l2errors.SlotOverrun
	var fired bool
	reg := echoProcessor{process: func(tx processor.Transaction, view *processor.AccountView, env *processor.Environment) processor.ExecutionResult {
		time.Sleep(5 * time.Millisecond)
		return processor.ExecutionResult{Status: processor.StatusOk}
	}}
	ex := New(store, q, log, reg, n, nil, env, time.Millisecond, func(o l2errors.SlotOverrun) {
		fired = true
		overran = o
	})
	require.NoError(t, q.TrySubmit(queue.Transaction{DeclaredKeys: []accounts.Key{{0x01}}}))

	ex.RunTick(7, [32]byte{}, 1000)

	require.True(t, fired)
	require.Equal(t, accounts.Slot(7), overran.Slot)
}
