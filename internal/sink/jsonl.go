package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MrWong99/chartvox/pkg/types"
)

// JSONL persists commits as JSON lines in a local file. The file is opened
// per write, so it may be rotated or removed between commits.
type JSONL struct {
	mu   sync.Mutex
	path string
}

var _ Sink = (*JSONL)(nil)

// NewJSONL returns a JSONL sink appending to path. The file is created on
// the first commit.
func NewJSONL(path string) *JSONL {
	return &JSONL{path: path}
}

// Path returns the file the sink appends to.
func (j *JSONL) Path() string { return j.path }

// Commit appends c as one JSON line.
func (j *JSONL) Commit(_ context.Context, c types.Commit) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("sink: marshal commit: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("sink: write log: %w", err)
	}
	return nil
}

// ReadJSONL decodes every commit in r. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]types.Commit, error) {
	var out []types.Commit
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c types.Commit
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return out, fmt.Errorf("sink: line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("sink: read log: %w", err)
	}
	return out, nil
}

// Replay feeds every commit of the log at path into s, in order. A missing
// file replays nothing.
func Replay(ctx context.Context, path string, s Sink) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sink: open log: %w", err)
	}
	defer f.Close()

	commits, err := ReadJSONL(f)
	if err != nil {
		return 0, err
	}
	for i, c := range commits {
		if err := s.Commit(ctx, c); err != nil {
			return i, err
		}
	}
	return len(commits), nil
}
