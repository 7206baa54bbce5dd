package memory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// pageKey identifies one (owner, virtual-page) pair in the backing
// store index.
type pageKey struct {
	owner string
	vpage int
}

// Store is the append-only, line-oriented backing-store file: one
// record per eviction, "<name> <vpage> <v0> <v1> ... <v_{n-1}>\n". An
// in-memory index maps the latest record for a (name, vpage) pair
// straight to its file offset, turning lookup from an O(file size)
// scan into O(1) without changing the on-disk format.
type Store struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	index map[pageKey]int64
}

// OpenStore opens (creating if necessary) the backing-store file at
// path and rebuilds its lookup index by scanning any pre-existing
// content.
func OpenStore(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, file: f, index: make(map[pageKey]int64)}
	if err := s.rebuildIndex(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuildIndex() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var offset int64
	scanner := bufio.NewScanner(s.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if owner, vpage, ok := parseRecordHeader(line); ok {
			s.index[pageKey{owner, vpage}] = offset
		}
		offset += int64(len(line)) + 1
	}
	_, err := s.file.Seek(0, io.SeekEnd)
	return err
}

func parseRecordHeader(line string) (owner string, vpage int, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", 0, false
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, false
	}
	return fields[0], v, true
}

// Append writes a new record for (owner, vpage) with the given frame
// payload and updates the index so it becomes the authoritative
// ("last write wins") record.
func (s *Store) Append(owner string, vpage int, payload []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d", owner, vpage)
	for _, v := range payload {
		fmt.Fprintf(&b, " %d", v)
	}
	b.WriteByte('\n')
	if _, err := s.file.WriteString(b.String()); err != nil {
		return err
	}
	s.index[pageKey{owner, vpage}] = off
	return nil
}

// Load returns the most recently written payload for (owner, vpage),
// or ok=false if no record exists (the frame should be zero-filled).
func (s *Store) Load(owner string, vpage int, frameWords int) (payload []uint16, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off, found := s.index[pageKey{owner, vpage}]
	if !found {
		return nil, false, nil
	}
	if _, err := s.file.Seek(off, io.SeekStart); err != nil {
		return nil, false, err
	}
	reader := bufio.NewReader(s.file)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, false, err
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, false, nil
	}
	out := make([]uint16, 0, frameWords)
	for _, f := range fields[2:] {
		n, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			break
		}
		out = append(out, uint16(n))
	}
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
