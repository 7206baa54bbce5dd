package scheduler

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/csopesy/emulator/pkg/interp"
	"github.com/csopesy/emulator/pkg/memory"
	"github.com/csopesy/emulator/pkg/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRig(t *testing.T) (*interp.Interpreter, *memory.Allocator) {
	t.Helper()
	store, err := memory.OpenStore(filepath.Join(t.TempDir(), "backing.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	pager := memory.NewPager(1024, 16, store)
	return interp.New(pager, 1024), memory.NewAllocator(1024)
}

func mustProgram(t *testing.T, text string) []process.Instruction {
	t.Helper()
	insts, err := interp.ParseProgram(text)
	require.NoError(t, err)
	return insts
}

// TestScheduler_FCFSRunsToCompletion exercises the FCFS discipline: a
// single worker drains the queue to empty.
func TestScheduler_FCFSRunsToCompletion(t *testing.T) {
	in, alloc := newTestRig(t)
	queue := NewReadyQueue()

	var finished []string
	hooks := Hooks{OnFinish: func(p *process.Process) { finished = append(finished, p.Name) }}
	sched := New(Config{NumCPU: 1, Discipline: FCFS}, queue, in, alloc, hooks)
	sched.Start()

	p := process.New("P1", mustProgram(t, `DECLARE a 1; DECLARE b 2; ADD c a b`), 64, time.Now())
	_, err := alloc.Allocate(p.Name, p.MemSize)
	require.NoError(t, err)
	queue.Enqueue(p)

	require.Eventually(t, func() bool { return p.Finished() }, time.Second, time.Millisecond)
	sched.Stop()

	assert.Equal(t, []string{"P1"}, finished)
	assert.Equal(t, uint16(3), p.Symbols.Get("c"))
}

// TestScheduler_RoundRobinInterleaves checks that two processes, each
// with more instructions than the quantum, interleave one quantum at a
// time (A,A,B,B,...) rather than running FCFS-to-completion.
func TestScheduler_RoundRobinInterleaves(t *testing.T) {
	in, alloc := newTestRig(t)
	queue := NewReadyQueue()

	var order []string
	var mu sync.Mutex
	hooks := Hooks{OnInstruction: func(p *process.Process, core int, line string, ts time.Time) {
		mu.Lock()
		order = append(order, p.Name)
		mu.Unlock()
	}}
	sched := New(Config{NumCPU: 1, Discipline: RoundRobin, Quantum: 2}, queue, in, alloc, hooks)
	sched.Start()

	progA := mustProgram(t, `DECLARE a 1; DECLARE a 2; DECLARE a 3; DECLARE a 4`)
	progB := mustProgram(t, `DECLARE b 1; DECLARE b 2; DECLARE b 3; DECLARE b 4`)
	pa := process.New("A", progA, 64, time.Now())
	pb := process.New("B", progB, 64, time.Now())
	alloc.Allocate(pa.Name, pa.MemSize)
	alloc.Allocate(pb.Name, pb.MemSize)
	queue.Enqueue(pa)
	queue.Enqueue(pb)

	require.Eventually(t, func() bool { return pa.Finished() && pb.Finished() }, 2*time.Second, time.Millisecond)
	sched.Stop()

	require.Len(t, order, 8)
	// Single worker, quantum 2: A's first slice (2 instrs) runs before
	// B gets a turn, then they alternate.
	assert.Equal(t, []string{"A", "A", "B", "B", "A", "A", "B", "B"}, order)
}

// TestScheduler_TicksActivePlusIdleEqualsTotal checks that the three
// global counters always satisfy active+idle == total, for any mix of
// executed instructions and empty-queue wakeups at shutdown.
func TestScheduler_TicksActivePlusIdleEqualsTotal(t *testing.T) {
	in, alloc := newTestRig(t)
	queue := NewReadyQueue()
	sched := New(Config{NumCPU: 2, Discipline: FCFS}, queue, in, alloc, Hooks{})
	sched.Start()

	p := process.New("P", mustProgram(t, `DECLARE a 1; DECLARE a 2`), 64, time.Now())
	alloc.Allocate(p.Name, p.MemSize)
	queue.Enqueue(p)
	require.Eventually(t, func() bool { return p.Finished() }, time.Second, time.Millisecond)
	sched.Stop()

	total, active, idle := sched.Ticks()
	assert.Equal(t, total, active+idle)
	assert.GreaterOrEqual(t, active, int64(2))
}

// TestScheduler_NoExecutionAfterStop checks that once Stop returns, no
// worker is still running, so a process enqueued afterwards (modeling
// work observed after shutdown) never advances.
func TestScheduler_NoExecutionAfterStop(t *testing.T) {
	in, alloc := newTestRig(t)
	queue := NewReadyQueue()
	sched := New(Config{NumCPU: 1, Discipline: FCFS}, queue, in, alloc, Hooks{})
	sched.Start()
	sched.Stop()

	p := process.New("P", mustProgram(t, `DECLARE a 1`), 64, time.Now())
	// The queue is closed; Enqueue still appends but no worker remains
	// to dequeue it.
	queue.Enqueue(p)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, p.IP)
	assert.False(t, p.Finished())
}
