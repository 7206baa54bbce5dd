// Package process defines the synthetic process data model: the
// instruction vector, the per-process symbol table, the page table,
// and the stable-address container that owns every process for the
// lifetime of a run.
package process

import (
	"fmt"
	"sync"
	"time"
)

// TimeLayout is the 12-hour timestamp format used throughout logs,
// snapshots, and shutdown messages, matching the original prototype's
// getCurrentDateTime.
const TimeLayout = "01/02/2006 03:04:05 PM"

// SymbolCap is the maximum number of distinct variables a process may
// declare. Each variable occupies two bytes of the process's simulated
// symbol-table address space, so the cap also bounds DECLARE's address
// space to [0, SymbolCap*2).
const SymbolCap = 32

// SymbolTable is a process's private name -> u16 variable store. It is
// capped at SymbolCap entries; DECLARE beyond the cap is a no-op.
type SymbolTable struct {
	order []string
	vals  map[string]uint16
}

// NewSymbolTable returns an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{vals: make(map[string]uint16, SymbolCap)}
}

// Get returns the value bound to name, or 0 if the name was never
// declared (spec: "undeclared variables read as 0").
func (s *SymbolTable) Get(name string) uint16 {
	return s.vals[name]
}

// Declared reports whether name has been explicitly declared, and its
// value if so. Used by PRINT, which distinguishes a declared value
// from an undeclared variable rather than silently reading 0.
func (s *SymbolTable) Declared(name string) (uint16, bool) {
	v, ok := s.vals[name]
	return v, ok
}

// Len reports how many distinct variables have been declared.
func (s *SymbolTable) Len() int {
	return len(s.order)
}

// Full reports whether the table has reached SymbolCap entries and an
// unseen name cannot be declared.
func (s *SymbolTable) Full(name string) bool {
	if _, ok := s.vals[name]; ok {
		return false
	}
	return len(s.order) >= SymbolCap
}

// Set declares or updates name. It reports false without mutating the
// table if name is new and the table is already full.
func (s *SymbolTable) Set(name string, value uint16) bool {
	if s.Full(name) {
		return false
	}
	if _, ok := s.vals[name]; !ok {
		s.order = append(s.order, name)
	}
	s.vals[name] = value
	return true
}

// Snapshot returns the declared variables in declaration order, for
// process-smi style inspection.
func (s *SymbolTable) Snapshot() []struct {
	Name  string
	Value uint16
} {
	out := make([]struct {
		Name  string
		Value uint16
	}, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, struct {
			Name  string
			Value uint16
		}{Name: n, Value: s.vals[n]})
	}
	return out
}

// PageTableEntry tracks whether a process's virtual page is currently
// backed by a physical frame.
type PageTableEntry struct {
	Present bool
	Frame   int
	Dirty   bool
}

// Handle is a stable reference to a Process stored in a Table. Unlike
// a pointer into a growable slice, a Handle never dangles across
// further insertions into a reallocating backing array.
type Handle int

// Process is one synthetic program: its instructions, its execution
// cursor, its private memory view, and its bookkeeping timestamps.
type Process struct {
	Name         string
	CreatedAt    time.Time
	FinishedAt   time.Time
	LastActiveAt time.Time
	Core         int // -1 when not currently assigned to a worker

	Instructions []Instruction
	IP           int
	Symbols      *SymbolTable

	ConsoleLog []string

	MemSize    int
	PageTable  map[int]*PageTableEntry
	LogStarted bool

	ShutDown        bool
	ShutDownMessage string

	mu sync.Mutex
}

// New constructs a process ready for admission: IP at 0, an empty
// symbol table, and no pages yet resident.
func New(name string, instructions []Instruction, memSize int, now time.Time) *Process {
	return &Process{
		Name:         name,
		CreatedAt:    now,
		LastActiveAt: now,
		Core:         -1,
		Instructions: instructions,
		Symbols:      NewSymbolTable(),
		MemSize:      memSize,
		PageTable:    make(map[int]*PageTableEntry),
	}
}

// Lock/Unlock expose the process's own mutex so a single worker can
// serialize the handful of fields (IP, Core, log) it mutates while
// executing a slice, without taking a table-wide lock.
func (p *Process) Lock()   { p.mu.Lock() }
func (p *Process) Unlock() { p.mu.Unlock() }

// Finished reports whether the process has run off the end of its
// instruction vector or been shut down.
func (p *Process) Finished() bool {
	return p.ShutDown || p.IP >= len(p.Instructions)
}

// PageEntry returns (creating if necessary) the page-table entry for
// the given virtual page.
func (p *Process) PageEntry(vpage int) *PageTableEntry {
	e, ok := p.PageTable[vpage]
	if !ok {
		e = &PageTableEntry{Frame: -1}
		p.PageTable[vpage] = e
	}
	return e
}

// Present implements memory.PageTable.
func (p *Process) Present(vpage int) (frame int, ok bool) {
	e, exists := p.PageTable[vpage]
	if !exists || !e.Present {
		return -1, false
	}
	return e.Frame, true
}

// SetPresent implements memory.PageTable.
func (p *Process) SetPresent(vpage, frame int) {
	e := p.PageEntry(vpage)
	e.Present = true
	e.Frame = frame
}

// SetAbsent implements memory.PageTable.
func (p *Process) SetAbsent(vpage int) {
	e := p.PageEntry(vpage)
	e.Present = false
	e.Frame = -1
}

// AppendLog records one line of PRINT output in the in-memory console
// log. The per-process log file (pkg/logio) is written separately and
// holds a line for every executed instruction.
func (p *Process) AppendLog(line string) {
	p.ConsoleLog = append(p.ConsoleLog, line)
}

// Shutdown marks the process terminated due to a memory access
// violation.
func (p *Process) Shutdown(now time.Time, offendingAddr string) {
	p.ShutDown = true
	p.FinishedAt = now
	p.ShutDownMessage = fmt.Sprintf(
		"Process %s shut down due to memory access violation error that occurred at %s. %s invalid.",
		p.Name, now.Format(TimeLayout), offendingAddr,
	)
}

// Finish marks normal completion (IP reached the end of the vector).
func (p *Process) Finish(now time.Time) {
	p.FinishedAt = now
}

// Table is the master, stable-address collection of every process
// created during a run. Processes are never removed from it: a
// finished or shut-down process remains for reporting.
type Table struct {
	mu    sync.Mutex
	byID  []*Process
	names map[string]Handle
}

// NewTable returns an empty process table.
func NewTable() *Table {
	return &Table{names: make(map[string]Handle)}
}

// Insert admits a new process, returning its stable handle. It
// reports false if the name is already taken; process names must be
// unique.
func (t *Table) Insert(p *Process) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.names[p.Name]; exists {
		return 0, false
	}
	h := Handle(len(t.byID))
	t.byID = append(t.byID, p)
	t.names[p.Name] = h
	return h, true
}

// Get resolves a handle to its process pointer. The pointer is stable
// for the table's lifetime.
func (t *Table) Get(h Handle) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[h]
}

// Lookup resolves a process by name.
func (t *Table) Lookup(name string) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.names[name]
	if !ok {
		return nil, false
	}
	return t.byID[h], true
}

// All returns a snapshot slice of every process known to the table, in
// admission order. The returned slice is a copy of the pointer list;
// the pointees are still shared and must be locked individually if
// their mutable fields are read concurrently with a worker.
func (t *Table) All() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Process, len(t.byID))
	copy(out, t.byID)
	return out
}

// Len reports how many processes the table has ever admitted.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
