package system

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestSystem_GuardBeforeInitialize checks the command guard rejects
// work before Initialize.
func TestSystem_GuardBeforeInitialize(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.CreateRandomProcess("p1", 64)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// TestSystem_EndToEndScenario1 runs a DECLARE/WRITE/READ round trip
// end to end through initialize, scheduling, and process-smi.
func TestSystem_EndToEndScenario1(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, "num-cpu 2\nscheduler fcfs\ndelay-per-exec 0\nmax-overall-mem 64\nmem-per-frame 16\nmin-ins 3\nmax-ins 3\n")
	s := New(dir)
	require.NoError(t, s.Initialize(cfgPath))
	require.NoError(t, s.SchedulerStart())

	p, err := s.CreateProgram("P", 64, `DECLARE a 7; WRITE 0x0 a; READ b 0x0`)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.Finished() }, time.Second, time.Millisecond)
	require.NoError(t, s.SchedulerStop())

	assert.False(t, p.ShutDown)
	assert.Equal(t, uint16(7), p.Symbols.Get("a"))
	assert.Equal(t, uint16(7), p.Symbols.Get("b"))

	out, err := s.ProcessSMI("P")
	require.NoError(t, err)
	assert.Contains(t, string(out), "a")
}

// TestSystem_AllocationFailureReported checks that a second process
// too large to fit is reported as an allocation failure.
func TestSystem_AllocationFailureReported(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, "max-overall-mem 64\nmem-per-frame 16\n")
	s := New(dir)
	require.NoError(t, s.Initialize(cfgPath))

	_, err := s.CreateRandomProcess("p1", 64)
	require.NoError(t, err)

	_, err = s.CreateRandomProcess("p2", 64)
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

// TestSystem_VmstatTicksBalance checks that vmstat reports
// total_ticks equal to active_ticks + idle_ticks after a short run.
func TestSystem_VmstatTicksBalance(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, "num-cpu 1\ndelay-per-exec 0\nmax-overall-mem 256\nmem-per-frame 16\n")
	s := New(dir)
	require.NoError(t, s.Initialize(cfgPath))
	require.NoError(t, s.SchedulerStart())

	p, err := s.CreateProgram("P", 64, `DECLARE a 1; DECLARE b 2`)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Finished() }, time.Second, time.Millisecond)
	require.NoError(t, s.SchedulerStop())

	out, err := s.Vmstat()
	require.NoError(t, err)
	assert.Contains(t, out, "total_ticks=")

	var total, active, idle, pagesIn, pagesOut int
	_, err = fmt.Sscanf(out, "total_ticks=%d active_ticks=%d idle_ticks=%d pages_paged_in=%d pages_paged_out=%d",
		&total, &active, &idle, &pagesIn, &pagesOut)
	require.NoError(t, err)
	assert.Equal(t, total, active+idle)
}

func TestSystem_ReportUtilPersistsListing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, "max-overall-mem 256\nmem-per-frame 16\n")
	s := New(dir)
	require.NoError(t, s.Initialize(cfgPath))

	_, err := s.CreateRandomProcess("p1", 64)
	require.NoError(t, err)
	_, err = s.ListStatus()
	require.NoError(t, err)
	require.NoError(t, s.ReportUtil())

	data, err := os.ReadFile(filepath.Join(dir, "csopesy-log.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "p1")
}
