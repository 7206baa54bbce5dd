// Package logio implements the emulator's three on-disk reporting
// surfaces: a per-process instruction log, periodic memory-snapshot
// dumps, and the `report-util`/`process-smi` tables, rendered with
// github.com/olekukonko/tablewriter.
package logio

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/csopesy/emulator/pkg/memory"
	"github.com/csopesy/emulator/pkg/process"
)

// ProcessLog writes one append-only text file per process: a
// two-line header, then one line per executed instruction. Open
// failures are logged and otherwise dropped — log I/O is explicitly
// non-fatal.
type ProcessLog struct {
	dir string
}

// NewProcessLog returns a writer rooted at dir (the current directory
// when dir is empty, matching the original prototype's `./<name>.txt`).
func NewProcessLog(dir string) *ProcessLog {
	return &ProcessLog{dir: dir}
}

func (l *ProcessLog) path(name string) string {
	if l.dir == "" {
		return name + ".txt"
	}
	return l.dir + string(os.PathSeparator) + name + ".txt"
}

// EnsureHeader writes the two-line header the first time a process
// logs anything.
func (l *ProcessLog) EnsureHeader(p *process.Process) {
	p.Lock()
	already := p.LogStarted
	if !already {
		p.LogStarted = true
	}
	p.Unlock()
	if already {
		return
	}
	f, err := os.OpenFile(l.path(p.Name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		slog.Warn("logio: could not create process log", "process", p.Name, "err", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "Process name: %s\nLogs:\n\n", p.Name)
}

// AppendInstruction appends one `(<timestamp>) Core:<id> <message>`
// line.
func (l *ProcessLog) AppendInstruction(p *process.Process, core int, message string, ts time.Time) {
	l.EnsureHeader(p)
	f, err := os.OpenFile(l.path(p.Name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Warn("logio: could not append to process log", "process", p.Name, "err", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "(%s) Core:%d %s\n", ts.Format(process.TimeLayout), core, message)
}

// SnapshotWriter emits periodic memory-usage snapshots to
// memory_stamp_<seq>.txt.
type SnapshotWriter struct {
	dir       string
	frameSize int
}

// NewSnapshotWriter returns a writer rooted at dir.
func NewSnapshotWriter(dir string, frameSize int) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, frameSize: frameSize}
}

// Write renders one snapshot file for the given sequence number.
func (w *SnapshotWriter) Write(seq int, alloc *memory.Allocator, now time.Time) error {
	path := "memory_stamp_" + fmt.Sprint(seq) + ".txt"
	if w.dir != "" {
		path = w.dir + string(os.PathSeparator) + path
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		slog.Warn("logio: could not write memory snapshot", "seq", seq, "err", err)
		return err
	}
	defer f.Close()

	// Snapshot() already returns blocks high start offset first.
	blocks := alloc.Snapshot()
	fragKB := alloc.ExternalFragmentation() / 1024

	fmt.Fprintf(f, "Timestamp: (%s)\n", now.Format(process.TimeLayout))
	fmt.Fprintf(f, "Number of processes in memory: %d\n", alloc.OwnedProcessCount())
	fmt.Fprintf(f, "Total external fragmentation in KB: %d\n\n", fragKB)

	fmt.Fprintf(f, "----end---- = %d\n", alloc.Total())
	cur := alloc.Total()
	for _, b := range blocks {
		if b.Owner != "" {
			fmt.Fprintf(f, "%d\n%s\n%d\n\n", cur, b.Owner, cur-b.Size)
		}
		cur -= b.Size
	}
	fmt.Fprintf(f, "----start---- = 0\n")
	return nil
}

// ProcessStatusRow is one row of the process-smi / screen-ls tables.
type ProcessStatusRow struct {
	Name      string
	CreatedAt time.Time
	Core      int
	Executed  int
	Total     int
	Finished  bool
}

// RenderStatusTable groups rows into "Running processes" and "Finished
// processes" sections (the original prototype's per-category loop),
// rendering each with tablewriter the way arctir-proctor's
// createTableListOutput renders process lists.
func RenderStatusTable(rows []ProcessStatusRow) []byte {
	var running, finished [][]string
	for _, r := range rows {
		row := []string{
			r.Name,
			r.CreatedAt.Format(process.TimeLayout),
			coreLabel(r.Core),
			fmt.Sprintf("%d / %d", r.Executed, r.Total),
		}
		if r.Finished {
			finished = append(finished, row)
		} else {
			running = append(running, row)
		}
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "Running processes:")
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"process", "created", "core", "executed/total"})
	table.AppendBulk(running)
	table.Render()

	fmt.Fprintln(&buf, "\nFinished processes:")
	table = tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"process", "created", "core", "executed/total"})
	table.AppendBulk(finished)
	table.Render()
	return buf.Bytes()
}

func coreLabel(core int) string {
	if core < 0 {
		return "-"
	}
	return fmt.Sprint(core)
}

// RenderProcessSMI renders a single process's symbol table as a table
// for `process-smi <name>`.
func RenderProcessSMI(p *process.Process) []byte {
	snap := p.Symbols.Snapshot()
	sort.Slice(snap, func(i, j int) bool { return snap[i].Name < snap[j].Name })

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "process: %s\n", p.Name)
	var rows [][]string
	for _, v := range snap {
		rows = append(rows, []string{v.Name, fmt.Sprint(v.Value)})
	}
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"variable", "value"})
	table.AppendBulk(rows)
	table.Render()
	return buf.Bytes()
}

// WriteReportUtil persists a rendered screen-ls snapshot to
// csopesy-log.txt.
func WriteReportUtil(dir string, rendered []byte) error {
	path := "csopesy-log.txt"
	if dir != "" {
		path = dir + string(os.PathSeparator) + path
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		slog.Warn("logio: could not write report-util output", "err", err)
		return err
	}
	return nil
}
