package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolTable_UndeclaredReadsZero(t *testing.T) {
	s := NewSymbolTable()
	assert.Equal(t, uint16(0), s.Get("x"))
}

func TestSymbolTable_CapEnforced(t *testing.T) {
	s := NewSymbolTable()
	for i := 0; i < SymbolCap; i++ {
		name := string(rune('a' + i))
		require.True(t, s.Set(name, uint16(i)))
	}
	// table is now full: a brand new name is rejected...
	assert.False(t, s.Set("overflow", 1))
	// ...but updating an existing variable still succeeds.
	assert.True(t, s.Set("a", 99))
	assert.Equal(t, uint16(99), s.Get("a"))
	assert.Equal(t, SymbolCap, s.Len())
}

func TestTable_InsertRejectsDuplicateNames(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	p1 := New("p1", nil, 64, now)
	p2 := New("p1", nil, 64, now)

	_, ok := tbl.Insert(p1)
	require.True(t, ok)
	_, ok = tbl.Insert(p2)
	assert.False(t, ok)
	assert.Equal(t, 1, tbl.Len())
}

func TestTable_HandlesAreStable(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	h1, _ := tbl.Insert(New("p1", nil, 64, now))
	p1Before := tbl.Get(h1)

	for i := 0; i < 64; i++ {
		tbl.Insert(New("p"+string(rune('A'+i)), nil, 64, now))
	}

	assert.Same(t, p1Before, tbl.Get(h1))
}

func TestProcess_ShutdownMessageFormat(t *testing.T) {
	p := New("p1", nil, 64, time.Now())
	now := time.Date(2024, 3, 1, 13, 5, 0, 0, time.UTC)
	p.Shutdown(now, "0xFFFFFFF")

	assert.True(t, p.ShutDown)
	assert.Contains(t, p.ShutDownMessage, "Process p1 shut down due to memory access violation error")
	assert.Contains(t, p.ShutDownMessage, "0xFFFFFFF invalid.")
}

func TestProcess_FinishedWhenIPReachesEnd(t *testing.T) {
	p := New("p1", []Instruction{{Op: OpSleep, SleepTicks: 1}}, 64, time.Now())
	assert.False(t, p.Finished())
	p.IP = 1
	assert.True(t, p.Finished())
}
