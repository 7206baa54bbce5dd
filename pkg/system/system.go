// Package system wires the allocator, pager, backing store,
// interpreter, scheduler, generator, and process table into the one
// long-lived aggregate the console drives. It owns the atomic
// init/run flags and the memory-snapshot sequence counter as shared
// mutable state, rather than a function-local static.
package system

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csopesy/emulator/pkg/config"
	"github.com/csopesy/emulator/pkg/generator"
	"github.com/csopesy/emulator/pkg/interp"
	"github.com/csopesy/emulator/pkg/logio"
	"github.com/csopesy/emulator/pkg/memory"
	"github.com/csopesy/emulator/pkg/process"
	"github.com/csopesy/emulator/pkg/scheduler"
)

// ErrNotInitialized is returned by every command method except
// Initialize until Initialize has succeeded.
var ErrNotInitialized = errors.New("system: run 'initialize' first")

// ErrAllocationFailed is returned when a process's memory request has
// no admissible fit.
var ErrAllocationFailed = errors.New("system: memory allocation failed")

// ErrInvalidMemorySize is returned when a requested memory size is
// outside the allowed range or not a power of two.
var ErrInvalidMemorySize = errors.New("system: invalid memory allocation")

// ErrDuplicateName is returned when a process name is already taken.
var ErrDuplicateName = errors.New("system: process name already exists")

// System is the emulator's top-level aggregate.
type System struct {
	dataDir string

	mu          sync.Mutex
	cfg         config.Config
	table       *process.Table
	alloc       *memory.Allocator
	store       *memory.Store
	pager       *memory.Pager
	interpreter *interp.Interpreter
	queue       *scheduler.ReadyQueue
	sched       *scheduler.Scheduler
	gen         *generator.Generator
	plog        *logio.ProcessLog
	snap        *logio.SnapshotWriter
	rng         *rand.Rand // guarded by mu; feeds `screen -s`'s random program

	instructionCounter int64 // guarded by mu; also the memory-stamp sequence number

	lastListing []byte // guarded by mu, last `screen -ls` rendering for report-util

	initialized      atomic.Bool
	schedulerRunning atomic.Bool
}

// New returns an uninitialized System rooted at dataDir (where process
// logs, snapshots, and csopesy-log.txt are written; "" means the
// current working directory).
func New(dataDir string) *System {
	return &System{dataDir: dataDir}
}

// Initialize loads configPath (or the defaults, logging a diagnostic,
// if it can't be read) and builds every core component. It is the
// only command allowed before initialization and may only run once.
func (s *System) Initialize(configPath string) error {
	if s.initialized.Load() {
		return fmt.Errorf("system: already initialized")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("system: config load failed, continuing with defaults", "err", err)
	}

	store, err := memory.OpenStore(filepath.Join(s.dataDir, "csopesy-backing-store.txt"))
	if err != nil {
		return fmt.Errorf("system: opening backing store: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.table = process.NewTable()
	s.alloc = memory.NewAllocator(cfg.MaxOverallMem)
	s.store = store
	s.pager = memory.NewPager(cfg.MaxOverallMem, cfg.MemPerFrame, store)
	s.interpreter = interp.New(s.pager, cfg.MaxOverallMem)
	s.queue = scheduler.NewReadyQueue()
	s.plog = logio.NewProcessLog(s.dataDir)
	s.snap = logio.NewSnapshotWriter(s.dataDir, cfg.MemPerFrame)
	s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))

	s.pager.SetEvictionNotifier(func(owner string, vpage int) {
		if p, ok := s.table.Lookup(owner); ok {
			p.SetAbsent(vpage)
		}
	})

	hooks := scheduler.Hooks{
		OnInstruction: s.onInstruction,
		OnFinish:      s.onFinish,
		OnShutdown:    s.onShutdown,
	}
	s.sched = scheduler.New(scheduler.Config{
		NumCPU:       cfg.NumCPU,
		Discipline:   scheduler.ParseDiscipline(cfg.Scheduler),
		Quantum:      cfg.QuantumCycles,
		DelayPerExec: time.Duration(cfg.DelayPerExecMs) * time.Millisecond,
	}, s.queue, s.interpreter, s.alloc, hooks)

	s.gen = generator.New(generator.Config{
		Interval:   time.Duration(cfg.BatchProcessFreq*cfg.DelayPerExecMs) * time.Millisecond,
		MinIns:     cfg.MinIns,
		MaxIns:     cfg.MaxIns,
		MinMemProc: cfg.MinMemPerProc,
		MaxMemProc: cfg.MaxMemPerProc,
	}, s.table, s.alloc, s.queue, time.Now().UnixNano(), nil)
	s.mu.Unlock()

	s.initialized.Store(true)
	return nil
}

// Initialized reports whether Initialize has completed, for the
// console's command guard.
func (s *System) Initialized() bool {
	return s.initialized.Load()
}

func (s *System) requireInitialized() error {
	if !s.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// onInstruction fan-outs to the per-process log file and the
// memory-snapshot cadence, firing every quantum instructions executed
// in aggregate across workers.
func (s *System) onInstruction(p *process.Process, core int, line string, ts time.Time) {
	s.plog.AppendInstruction(p, core, line, ts)

	s.mu.Lock()
	s.instructionCounter++
	seq := s.instructionCounter
	due := s.cfg.QuantumCycles > 0 && seq%int64(s.cfg.QuantumCycles) == 0
	alloc := s.alloc
	s.mu.Unlock()

	if due {
		_ = s.snap.Write(int(seq), alloc, ts)
	}
}

func (s *System) onFinish(p *process.Process) {
	slog.Info("process finished", "process", p.Name)
}

func (s *System) onShutdown(p *process.Process) {
	slog.Warn("process shut down", "process", p.Name, "message", p.ShutDownMessage)
}

// SchedulerStart starts the generator and the CPU workers, a no-op if
// already running.
func (s *System) SchedulerStart() error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if s.schedulerRunning.CompareAndSwap(false, true) {
		s.sched.Start()
		s.gen.Start()
	}
	return nil
}

// SchedulerStop joins the generator first, then the CPU workers,
// draining the ready queue before the workers exit.
func (s *System) SchedulerStop() error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if s.schedulerRunning.CompareAndSwap(true, false) {
		s.gen.Stop()
		s.sched.Stop()
	}
	return nil
}

// CreateRandomProcess implements `screen -s <name> <mem>`.
func (s *System) CreateRandomProcess(name string, memSize int) (*process.Process, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	if !validMemSize(memSize) {
		return nil, ErrInvalidMemorySize
	}
	s.mu.Lock()
	minIns, maxIns := s.cfg.MinIns, s.cfg.MaxIns
	count := minIns
	if maxIns > minIns {
		count += s.rng.Intn(maxIns - minIns + 1)
	}
	insts := generator.RandomProgram(s.rng, count, name)
	s.mu.Unlock()
	return s.admit(name, memSize, insts)
}

// CreateProgram implements `screen -c <name> <mem> "<instructions>"`.
func (s *System) CreateProgram(name string, memSize int, programText string) (*process.Process, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	if !validMemSize(memSize) {
		return nil, ErrInvalidMemorySize
	}
	insts, err := interp.ParseProgram(programText)
	if err != nil {
		return nil, err
	}
	return s.admit(name, memSize, insts)
}

func (s *System) admit(name string, memSize int, insts []process.Instruction) (*process.Process, error) {
	p := process.New(name, insts, memSize, time.Now())
	if _, err := s.alloc.Allocate(name, memSize); err != nil {
		return nil, ErrAllocationFailed
	}
	if _, ok := s.table.Insert(p); !ok {
		s.alloc.Free(name)
		return nil, ErrDuplicateName
	}
	s.queue.Enqueue(p)
	return p, nil
}

// Resume implements `screen -r <name>`.
func (s *System) Resume(name string) (*process.Process, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	p, ok := s.table.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("system: no such process %q", name)
	}
	return p, nil
}

// ListStatus implements `screen -ls`, caching the rendering for a
// subsequent `report-util`.
func (s *System) ListStatus() ([]logio.ProcessStatusRow, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	var rows []logio.ProcessStatusRow
	for _, p := range s.table.All() {
		p.Lock()
		rows = append(rows, logio.ProcessStatusRow{
			Name:      p.Name,
			CreatedAt: p.CreatedAt,
			Core:      p.Core,
			Executed:  p.IP,
			Total:     len(p.Instructions),
			Finished:  p.Finished(),
		})
		p.Unlock()
	}
	s.mu.Lock()
	s.lastListing = logio.RenderStatusTable(rows)
	s.mu.Unlock()
	return rows, nil
}

// ProcessSMI implements `process-smi` for a single process.
func (s *System) ProcessSMI(name string) ([]byte, error) {
	p, err := s.Resume(name)
	if err != nil {
		return nil, err
	}
	return logio.RenderProcessSMI(p), nil
}

// Vmstat implements `vmstat`: CPU tick counters and paging counters
// combined in one view, per the original prototype (SPEC_FULL.md §8).
func (s *System) Vmstat() (string, error) {
	if err := s.requireInitialized(); err != nil {
		return "", err
	}
	total, active, idle := s.sched.Ticks()
	pagesIn, pagesOut := s.pager.Stats()
	return fmt.Sprintf(
		"total_ticks=%d active_ticks=%d idle_ticks=%d pages_paged_in=%d pages_paged_out=%d",
		total, active, idle, pagesIn, pagesOut,
	), nil
}

// ReportUtil implements `report-util`: persist the last `screen -ls`
// rendering to csopesy-log.txt.
func (s *System) ReportUtil() error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	s.mu.Lock()
	rendered := s.lastListing
	s.mu.Unlock()
	if rendered == nil {
		if _, err := s.ListStatus(); err != nil {
			return err
		}
		s.mu.Lock()
		rendered = s.lastListing
		s.mu.Unlock()
	}
	return logio.WriteReportUtil(s.dataDir, rendered)
}

// Shutdown tears down the scheduler (if running) and closes the
// backing store. cmd/csopesy defers this call, so it runs when the
// REPL loop ends, including after the console `exit` command.
func (s *System) Shutdown() error {
	if s.initialized.Load() {
		_ = s.SchedulerStop()
		return s.store.Close()
	}
	return nil
}

func validMemSize(size int) bool {
	if size < 64 || size > 8192 {
		return false
	}
	return size&(size-1) == 0
}
