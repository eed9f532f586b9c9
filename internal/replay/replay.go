// Package replay supplies measurement lines to an emulator from a recorded
// data file. Regular files are replayed cyclically; pipes are read until
// drained and the caller retries on the next tick.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/metwx/metemu/internal/log"
)

// Source reads lines from a recorded data file. All access goes through an
// internal mutex so the session's sender and dispatcher can share it.
type Source struct {
	mu         sync.Mutex
	f          *os.File
	r          *bufio.Reader
	rewindable bool
	drained    bool
}

// Open opens path and probes whether it can be rewound. FIFOs and character
// devices cannot; those are treated as drought-tolerant streams.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat replay file: %w", err)
	}

	return &Source{
		f:          f,
		r:          bufio.NewReader(f),
		rewindable: fi.Mode().IsRegular(),
	}, nil
}

// NewFromFile wraps an already-open file. Used by tests and by the TCP
// transport path where the opener lives elsewhere.
func NewFromFile(f *os.File, rewindable bool) *Source {
	return &Source{f: f, r: bufio.NewReader(f), rewindable: rewindable}
}

// Rewindable reports whether the source can loop. The dispatcher uses this
// to decide between skipping a tick and answering with an error frame.
func (s *Source) Rewindable() bool {
	return s.rewindable
}

// NextLine returns the next measurement line with trailing CR/LF stripped.
// On EOF a rewindable source seeks back to the start and re-reads; a
// non-rewindable source reports a drought and the caller retries later.
func (s *Source) NextLine() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := s.r.ReadString('\n')
	if err == nil || (err == io.EOF && line != "") {
		s.drained = false
		return strings.TrimRight(line, "\r\n"), true
	}

	if !s.rewindable {
		if !s.drained {
			log.Info("replay stream drained, waiting for more data")
			s.drained = true
		}
		return "", false
	}

	// Loop the file. A file that is empty even after rewinding has nothing
	// to offer.
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		log.Errorf("rewinding replay file: %v", err)
		return "", false
	}
	s.r.Reset(s.f)

	line, err = s.r.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// Close releases the underlying file.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
