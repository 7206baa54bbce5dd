package memory

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/csopesy/emulator/pkg/process"
	"github.com/stretchr/testify/require"
)

func newTestPager(t *testing.T, total, frameSize int) *Pager {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "backing.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewPager(total, frameSize, store)
}

// WRITE(a, v) followed by READ(r, a) on the same process returns v,
// even across an intervening eviction caused by another process.
func TestPager_WriteReadRoundTripSurvivesEviction(t *testing.T) {
	pager := newTestPager(t, 8, 4) // 2 frames of 4 bytes each

	p1 := process.New("p1", nil, 8, time.Now())
	p2 := process.New("p2", nil, 8, time.Now())
	p3 := process.New("p3", nil, 8, time.Now())
	byName := map[string]*process.Process{"p1": p1, "p2": p2, "p3": p3}
	pager.SetEvictionNotifier(func(owner string, vpage int) {
		byName[owner].SetAbsent(vpage)
	})

	require.NoError(t, pager.EnsurePresent("p1", 0, p1))
	pager.WriteWord(0, 4242, p1)

	// p2 and p3 touch distinct pages, forcing p1's frame to be evicted
	// under FIFO (only 2 frames available).
	require.NoError(t, pager.EnsurePresent("p2", 4, p2))
	require.NoError(t, pager.EnsurePresent("p3", 0, p3)) // p3's vpage 0 reuses physical offset 0 but is a distinct owner

	require.NoError(t, pager.EnsurePresent("p1", 0, p1)) // page fault again: must restore 4242
	got := pager.ReadWord(0, p1)

	require.Equal(t, uint16(4242), got)
	_, out := pager.Stats()
	require.GreaterOrEqual(t, out, 1)
}

// Occupied frame count always equals the FIFO queue length.
func TestPager_OccupiedFramesMatchesFIFOLen(t *testing.T) {
	pager := newTestPager(t, 16, 4) // 4 frames
	owners := []string{"a", "b", "c"}
	for i, name := range owners {
		p := process.New(name, nil, 16, time.Now())
		require.NoError(t, pager.EnsurePresent(name, i*4, p))
	}
	require.Equal(t, pager.OccupiedFrames(), pager.FIFOLen())
}

func TestPager_EvictionNotifiesVictimPageTable(t *testing.T) {
	pager := newTestPager(t, 8, 4)
	p1 := process.New("p1", nil, 8, time.Now())
	p2 := process.New("p2", nil, 8, time.Now())
	p3 := process.New("p3", nil, 8, time.Now())

	byName := map[string]*process.Process{"p1": p1, "p2": p2, "p3": p3}
	pager.SetEvictionNotifier(func(owner string, vpage int) {
		byName[owner].SetAbsent(vpage)
	})

	require.NoError(t, pager.EnsurePresent("p1", 0, p1))
	require.NoError(t, pager.EnsurePresent("p2", 0, p2))
	require.NoError(t, pager.EnsurePresent("p3", 0, p3)) // evicts p1's frame

	_, ok := p1.Present(0)
	require.False(t, ok, "p1's page table entry should have been marked absent on eviction")
}

// TestPager_WriteFaultSurvivesConcurrentEviction hammers a 2-frame
// pager with many processes writing and reading their own page
// concurrently through WriteFault/ReadFault. Because each call services
// its fault and touches physical memory in one critical section, no
// process's write can be clobbered by another process's fault evicting
// the frame in between; calling EnsurePresent and ReadWord/WriteWord as
// two separate locked steps would not give this guarantee.
func TestPager_WriteFaultSurvivesConcurrentEviction(t *testing.T) {
	pager := newTestPager(t, 8, 4) // 2 frames: heavy eviction pressure

	const n = 16
	procs := make([]*process.Process, n)
	for i := range procs {
		procs[i] = process.New(processName(i), nil, 8, time.Now())
	}
	byName := make(map[string]*process.Process, n)
	for _, p := range procs {
		byName[p.Name] = p
	}
	pager.SetEvictionNotifier(func(owner string, vpage int) {
		byName[owner].SetAbsent(vpage)
	})

	var wg sync.WaitGroup
	for i, p := range procs {
		wg.Add(1)
		go func(p *process.Process, want uint16) {
			defer wg.Done()
			for round := 0; round < 50; round++ {
				require.NoError(t, pager.WriteFault(p.Name, 0, want, p))
				got, err := pager.ReadFault(p.Name, 0, p)
				require.NoError(t, err)
				require.Equal(t, want, got)
			}
		}(p, uint16(1000+i))
	}
	wg.Wait()
}

func processName(i int) string {
	return "proc" + string(rune('A'+i))
}
