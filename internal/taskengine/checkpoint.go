package taskengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/internal/logging"
	"github.com/clawd-io/clawd/pkg/types"
)

// CheckpointEveryN is the fallback cadence: absent a triggering event kind,
// a checkpoint is written every N appended events.
const CheckpointEveryN = 50

// checkpointTriggers are event kinds that force a checkpoint regardless of
// how many events have elapsed since the last one, since each leaves the
// task in a state worth resuming from directly.
var checkpointTriggers = map[types.TaskEventKind]bool{
	types.EvTaskDone:        true,
	types.EvApprovalGranted: true,
	types.EvApprovalDenied:  true,
	types.EvTaskBlocked:     true,
}

// ShouldCheckpoint decides whether the event just applied warrants a
// checkpoint write, given how many events have accumulated since the last one.
func ShouldCheckpoint(eventsSinceLast int, ev types.TaskEvent) bool {
	if checkpointTriggers[ev.Kind] {
		return true
	}
	return eventsSinceLast >= CheckpointEveryN
}

// WriteCheckpoint atomically persists cp to
// <task_dir>/checkpoints/<seq>.json (temp file + rename), mirroring
// internal/storage/storage.go's Put.
func WriteCheckpoint(taskDir string, cp types.Checkpoint) error {
	dir := filepath.Join(taskDir, "checkpoints")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return clawerr.ExternalFailuref("creating checkpoint dir: %v", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return clawerr.CorruptDataf("marshaling checkpoint: %v", err)
	}

	finalPath := filepath.Join(dir, fmt.Sprintf("%020d.json", cp.Seq))
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return clawerr.ExternalFailuref("writing checkpoint temp file: %v", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return clawerr.ExternalFailuref("renaming checkpoint into place: %v", err)
	}
	return nil
}

// LoadLatestCheckpoint returns the highest-seq checkpoint in taskDir, or nil
// if none exists. A corrupt snapshot is logged and skipped in favor of the
// next-older one rather than failing outright, since the event log can
// always replay forward from whatever checkpoint does load cleanly.
func LoadLatestCheckpoint(taskDir string) (*types.Checkpoint, error) {
	dir := filepath.Join(taskDir, "checkpoints")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, clawerr.ExternalFailuref("listing checkpoints: %v", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("taskengine: failed reading checkpoint, trying older one")
			continue
		}
		var cp types.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("taskengine: corrupt checkpoint, trying older one")
			continue
		}
		return &cp, nil
	}
	return nil, nil
}

// seqFromCheckpointName parses the zero-padded seq back out of a checkpoint
// filename. Nothing in this repository calls it.
func seqFromCheckpointName(name string) (int64, error) {
	base := strings.TrimSuffix(name, ".json")
	return strconv.ParseInt(base, 10, 64)
}
