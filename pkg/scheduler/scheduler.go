package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/csopesy/emulator/pkg/process"
)

// Discipline selects the scheduling algorithm.
type Discipline int

const (
	FCFS Discipline = iota
	RoundRobin
)

// ParseDiscipline maps the config file's `scheduler` value to a
// Discipline, defaulting to FCFS on anything unrecognised.
func ParseDiscipline(s string) Discipline {
	if s == "rr" {
		return RoundRobin
	}
	return FCFS
}

// Stepper is the subset of pkg/interp.Interpreter the scheduler needs:
// execute exactly one instruction and report its log line.
type Stepper interface {
	Step(p *process.Process, now time.Time) (logLine string, err error)
}

// Freer is the subset of pkg/memory.Allocator the scheduler needs to
// release a finished or shut-down process's memory.
type Freer interface {
	Free(owner string)
}

// Hooks lets the System observe scheduling events (per-instruction
// logging, memory snapshots, process completion) without the
// scheduler package importing pkg/logio or pkg/system.
type Hooks struct {
	// OnInstruction fires after every executed instruction, on every
	// worker, with the rendered log line.
	OnInstruction func(p *process.Process, core int, line string, ts time.Time)
	// OnFinish fires once when a process finishes normally.
	OnFinish func(p *process.Process)
	// OnShutdown fires once when a process is shut down.
	OnShutdown func(p *process.Process)
}

// Config bundles the scheduler's tunables, all sourced from the
// config file.
type Config struct {
	NumCPU       int
	Discipline   Discipline
	Quantum      int // instructions per RR slice
	DelayPerExec time.Duration
}

// Scheduler owns the ready queue and the pool of CPU workers.
type Scheduler struct {
	cfg       Config
	queue     *ReadyQueue
	interp    Stepper
	allocator Freer
	hooks     Hooks

	totalTicks  atomic.Int64
	activeTicks atomic.Int64
	idleTicks   atomic.Int64

	wg sync.WaitGroup
}

// New constructs a scheduler. Start must be called to spawn workers.
func New(cfg Config, queue *ReadyQueue, interp Stepper, allocator Freer, hooks Hooks) *Scheduler {
	if cfg.NumCPU < 1 {
		cfg.NumCPU = 1
	}
	if cfg.Quantum < 1 {
		cfg.Quantum = 1
	}
	return &Scheduler{cfg: cfg, queue: queue, interp: interp, allocator: allocator, hooks: hooks}
}

// Start spawns cfg.NumCPU worker goroutines.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.NumCPU; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// Stop closes the ready queue (so blocked workers wake and drain any
// remaining items before exiting) and joins every worker.
func (s *Scheduler) Stop() {
	s.queue.Close()
	s.wg.Wait()
}

// Ticks returns the three global tick counters for vmstat. active+idle
// always equals total by construction: every counted event increments
// exactly one of the two alongside the total.
func (s *Scheduler) Ticks() (total, active, idle int64) {
	return s.totalTicks.Load(), s.activeTicks.Load(), s.idleTicks.Load()
}

func (s *Scheduler) workerLoop(core int) {
	defer s.wg.Done()
	for {
		p, ok := s.queue.Dequeue()
		if !ok {
			// Woke with shutdown set and the queue empty: exit
			// immediately, counting the wakeup itself as an idle tick.
			s.idleTicks.Add(1)
			s.totalTicks.Add(1)
			return
		}
		s.executeSlice(core, p)
	}
}

// executeSlice runs p until it finishes, shuts down, or (round-robin
// only) exhausts its quantum, then re-enqueues it if it is still
// runnable.
func (s *Scheduler) executeSlice(core int, p *process.Process) {
	p.Lock()
	p.Core = core
	p.Unlock()

	executed := 0
	for !p.Finished() {
		if s.cfg.Discipline == RoundRobin && executed >= s.cfg.Quantum {
			break
		}

		now := time.Now()
		line, err := s.interp.Step(p, now)
		executed++
		s.totalTicks.Add(1)
		s.activeTicks.Add(1)

		p.Lock()
		p.LastActiveAt = now
		p.Unlock()

		if s.hooks.OnInstruction != nil && line != "" {
			s.hooks.OnInstruction(p, core, line, now)
		}

		if err != nil {
			// Memory access violation: process.Shutdown was already
			// called by the interpreter.
			p.Lock()
			p.Core = -1
			p.Unlock()
			s.allocator.Free(p.Name)
			if s.hooks.OnShutdown != nil {
				s.hooks.OnShutdown(p)
			}
			return
		}

		// Per-instruction pacing: a SLEEP instruction counts as one
		// toward the quantum but stalls the worker for its own tick
		// count on top of the regular per-exec delay.
		sleepTicks := instructionSleepTicks(p, executed)
		time.Sleep(s.cfg.DelayPerExec)
		if sleepTicks > 0 {
			time.Sleep(time.Duration(sleepTicks) * s.cfg.DelayPerExec)
		}
	}

	p.Lock()
	p.Core = -1
	finished := p.Finished()
	shutDown := p.ShutDown
	p.Unlock()

	if !finished {
		// Preempted before completion: round-robin re-enqueues at the
		// tail.
		s.queue.Enqueue(p)
		return
	}
	if shutDown {
		return // already freed and reported from within the loop above
	}
	p.Finish(time.Now())
	s.allocator.Free(p.Name)
	if s.hooks.OnFinish != nil {
		s.hooks.OnFinish(p)
	}
}

// instructionSleepTicks reports the sleep-tick count of the
// instruction just executed (IP was already advanced by Step), or 0
// if it wasn't a SLEEP.
func instructionSleepTicks(p *process.Process, executed int) uint8 {
	idx := p.IP - 1
	if idx < 0 || idx >= len(p.Instructions) {
		return 0
	}
	inst := p.Instructions[idx]
	if inst.Op == process.OpSleep {
		return inst.SleepTicks
	}
	return 0
}
