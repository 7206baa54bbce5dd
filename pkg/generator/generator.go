// Package generator implements the background workload generator: a
// single goroutine that mints synthetic processes at a fixed cadence,
// generates a random program for each, gates admission on the
// allocator, and enqueues survivors onto the ready queue.
package generator

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/csopesy/emulator/pkg/process"
)

// randVars are the three scratch variable names the original
// workload's random instructions draw from.
var randVars = []string{"x", "y", "z"}

// Allocator is the subset of pkg/memory.Allocator the generator needs.
type Allocator interface {
	Allocate(owner string, size int) (int, error)
}

// Enqueuer is the subset of pkg/scheduler.ReadyQueue the generator
// needs.
type Enqueuer interface {
	Enqueue(p *process.Process)
}

// Config bundles the generator's tunables, all sourced from the config
// file.
type Config struct {
	Interval    time.Duration // batch-process-freq * delay-per-exec
	MinIns      int
	MaxIns      int
	MinMemProc  int
	MaxMemProc  int
}

// Generator mints processes on its own goroutine until Stop is called.
type Generator struct {
	cfg       Config
	table     *process.Table
	alloc     Allocator
	queue     Enqueuer
	rng       *rand.Rand
	nextPID   atomic.Int64
	onAdmit   func(p *process.Process)

	stop chan struct{}
	done chan struct{}
}

// New constructs a generator. Start must be called to begin minting.
// onAdmit, if non-nil, fires once per successfully admitted process;
// pkg/system passes nil.
func New(cfg Config, table *process.Table, alloc Allocator, queue Enqueuer, seed int64, onAdmit func(p *process.Process)) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	g := &Generator{
		cfg:     cfg,
		table:   table,
		alloc:   alloc,
		queue:   queue,
		rng:     rand.New(rand.NewSource(seed)),
		onAdmit: onAdmit,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	g.nextPID.Store(1)
	return g
}

// Start spawns the generator goroutine.
func (g *Generator) Start() {
	go g.run()
}

// Stop signals the generator to exit and blocks until it has. Callers
// stopping the whole system join the generator before touching the
// CPU workers, so no new process is enqueued after the workers start
// draining.
func (g *Generator) Stop() {
	close(g.stop)
	<-g.done
}

func (g *Generator) run() {
	defer close(g.done)
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.mintOne()
		}
	}
}

// mintOne admits exactly one new process, retrying with a fresh
// program and a fresh memory-size draw on every allocation failure,
// until the generator is stopped.
func (g *Generator) mintOne() {
	for {
		select {
		case <-g.stop:
			return
		default:
		}

		name := fmt.Sprintf("p%d", g.nextPID.Add(1)-1)
		count := g.MinIns() + g.rng.Intn(g.MaxIns()-g.MinIns()+1)
		insts := RandomProgram(g.rng, count, name)
		memSize := g.randomPowerOfTwoMemSize()

		p := process.New(name, insts, memSize, time.Now())
		if _, err := g.alloc.Allocate(name, memSize); err != nil {
			// No fit: wait one interval and mint a fresh process
			// rather than retrying this exact one, matching the
			// original generator's "continue" loop.
			select {
			case <-g.stop:
				return
			case <-time.After(g.cfg.Interval):
			}
			continue
		}

		if _, ok := g.table.Insert(p); !ok {
			// Name collision: extremely unlikely given the monotonic
			// counter, but fall back to retrying with a new name.
			continue
		}
		g.queue.Enqueue(p)
		if g.onAdmit != nil {
			g.onAdmit(p)
		}
		return
	}
}

func (g *Generator) MinIns() int {
	if g.cfg.MinIns < 1 {
		return 1
	}
	return g.cfg.MinIns
}

func (g *Generator) MaxIns() int {
	if g.cfg.MaxIns < g.MinIns() {
		return g.MinIns()
	}
	return g.cfg.MaxIns
}

// randomPowerOfTwoMemSize draws uniformly from [MinMemProc,
// MaxMemProc] and rejection-samples until the result is a power of two
// in [64, 8192], mirroring the original prototype's isPowerOfTwo gate.
func (g *Generator) randomPowerOfTwoMemSize() int {
	lo, hi := g.cfg.MinMemProc, g.cfg.MaxMemProc
	if lo < 64 {
		lo = 64
	}
	if hi < lo {
		hi = lo
	}
	for {
		size := lo + g.rng.Intn(hi-lo+1)
		if isPowerOfTwo(size) && size >= 64 && size <= 8192 {
			return size
		}
	}
}

func isPowerOfTwo(x int) bool {
	return x > 0 && x&(x-1) == 0
}

// RandomProgram generates count random instructions, opcode uniform
// over the seven-opcode set, matching the original prototype's
// generateRandomInstructions. Exported so `screen -s` (pkg/system) can
// mint a single random process without spinning up a full background
// Generator.
func RandomProgram(rng *rand.Rand, count int, name string) []process.Instruction {
	out := make([]process.Instruction, 0, count)
	for i := 0; i < count; i++ {
		switch rng.Intn(7) {
		case 0:
			out = append(out, process.Instruction{
				Op:   process.OpDeclare,
				Dst:  process.Var(randVar(rng)),
				Src1: process.Lit(uint16(1 + rng.Intn(100))),
			})
		case 1:
			out = append(out, process.Instruction{
				Op:      process.OpPrint,
				Dst:     process.Var(randVar(rng)),
				Message: fmt.Sprintf("Hello world from %s!", name),
			})
		case 2:
			out = append(out, process.Instruction{
				Op:   process.OpAdd,
				Dst:  process.Var(randVar(rng)),
				Src1: process.Var(randVar(rng)),
				Src2: process.Var(randVar(rng)),
			})
		case 3:
			out = append(out, process.Instruction{
				Op:   process.OpSub,
				Dst:  process.Var(randVar(rng)),
				Src1: process.Var(randVar(rng)),
				Src2: process.Var(randVar(rng)),
			})
		case 4:
			out = append(out, process.Instruction{
				Op:         process.OpSleep,
				SleepTicks: uint8(1 + rng.Intn(3)),
			})
		case 5:
			out = append(out, process.Instruction{
				Op:          process.OpWrite,
				AddressText: randAddress(rng),
				Src2:        process.Var(randVar(rng)),
			})
		case 6:
			out = append(out, process.Instruction{
				Op:          process.OpRead,
				Dst:         process.Var(randVar(rng)),
				AddressText: randAddress(rng),
			})
		}
	}
	return out
}

func randVar(rng *rand.Rand) string {
	return randVars[rng.Intn(len(randVars))]
}

// randAddress draws a hex address in the fixed band [0x1000, 0x1400)
// used by the original prototype's random WRITE/READ operands.
func randAddress(rng *rand.Rand) string {
	return fmt.Sprintf("0x%X", 0x1000+rng.Intn(1024))
}
