// Package taskengine is the crash-safe event-sourcing core: per-task
// append-only JSONL event logs, a pure reducer folding them into
// MaterializedTask, periodic checkpoints, and replay-on-restart.
//
// The append-only log and the checkpoint's atomic temp-file-then-rename
// write are grounded on internal/storage/storage.go's Put (JSON marshal,
// write to a .tmp sibling, os.Rename), adapted from whole-file overwrite to
// O_APPEND line writes for the log itself.
package taskengine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/pkg/types"
)

// EventLog is one task's append-only event log file.
type EventLog struct {
	path string
	mu   sync.Mutex

	file    *os.File
	nextSeq int64
}

// OpenEventLog opens (creating if necessary) the log at
// <data_dir>/tasks/<task_id>/events.jsonl, scanning existing lines to learn
// the next seq to assign.
func OpenEventLog(taskDir string) (*EventLog, error) {
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return nil, clawerr.ExternalFailuref("creating task dir: %v", err)
	}
	path := filepath.Join(taskDir, "events.jsonl")

	nextSeq, err := scanNextSeq(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, clawerr.ExternalFailuref("opening event log: %v", err)
	}

	return &EventLog{path: path, file: f, nextSeq: nextSeq}, nil
}

func scanNextSeq(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, clawerr.ExternalFailuref("reading event log: %v", err)
	}
	defer f.Close()

	var last int64 = -1
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev types.TaskEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		last = ev.Seq
	}
	if err := scanner.Err(); err != nil {
		return 0, clawerr.CorruptDataf("scanning event log %s: %v", path, err)
	}
	return last + 1, nil
}

// Append assigns the next seq to ev, writes it as one JSON line, and
// fsyncs. The caller holds the per-task lock (internal/taskengine.Engine
// serializes appends per task) so this type itself does not re-lock beyond
// guarding its own file handle.
func (l *EventLog) Append(ev types.TaskEvent) (types.TaskEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev.Seq = l.nextSeq
	data, err := json.Marshal(ev)
	if err != nil {
		return ev, clawerr.CorruptDataf("marshaling event: %v", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return ev, clawerr.ExternalFailuref("appending event: %v", err)
	}
	if err := l.file.Sync(); err != nil {
		return ev, clawerr.ExternalFailuref("fsync event log: %v", err)
	}

	l.nextSeq++
	return ev, nil
}

// ReadFrom reads every event with Seq >= fromSeq, in order, for replay.
func (l *EventLog) ReadFrom(fromSeq int64) ([]types.TaskEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, clawerr.ExternalFailuref("opening event log for replay: %v", err)
	}
	defer f.Close()

	var events []types.TaskEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		var ev types.TaskEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Seq >= fromSeq {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, clawerr.CorruptDataf("scanning event log %s: %v", l.path, err)
	}
	return events, nil
}

// Close releases the underlying file handle.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *EventLog) String() string {
	return fmt.Sprintf("EventLog(%s)", l.path)
}
