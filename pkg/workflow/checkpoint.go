// Package workflow drives a Request through the reconnaissance → generation →
// validation → optimization stage loop to a terminal state, persisting
// resumable checkpoints and publishing progress events at each transition
// (spec §4.1; teacher: pkg/queue/worker.go's claim/execute/heartbeat shape).
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/recon"
)

// checkpointVersion1 is the oldest payload version decodeState accepts; this
// build writes models.CurrentCheckpointVersion. Both versions share one
// payload shape (see decodeState).
const checkpointVersion1 = 1

// state is the opaque payload carried inside models.Checkpoint.Payload: the
// last completed stage's output, enough to resume the stage after it without
// redoing prior work.
type state struct {
	Recon          *recon.Result         `json:"recon,omitempty"`
	RawTests       []string              `json:"raw_tests,omitempty"`
	ValidatedTests []*models.TestCase    `json:"validated_tests,omitempty"`
	OptResult      *optimizationSnapshot `json:"opt_result,omitempty"`
}

// optimizationSnapshot mirrors optimizer.Result in a form stable across the
// checkpoint's JSON encoding (optimizer.Result itself is not versioned).
type optimizationSnapshot struct {
	UniqueIDs     []string `json:"unique_ids"`
	CoverageScore float64  `json:"coverage_score"`
}

// encodeState marshals a stage payload for storage in models.Checkpoint.Payload.
func encodeState(s *state) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode checkpoint state: %w", err)
	}
	return b, nil
}

// decodeState unmarshals a checkpoint payload. Versions 1 and 2 share the same
// JSON shape (version 2 only added the Gaps field to the optimizer's own
// result type, which is not persisted in the checkpoint), so both decode
// identically; a version outside [1, CurrentCheckpointVersion] is rejected.
func decodeState(cp *models.Checkpoint) (*state, error) {
	if cp.Version < checkpointVersion1 || cp.Version > models.CurrentCheckpointVersion {
		return nil, fmt.Errorf("%w: unsupported checkpoint version %d", apperrors.ErrCheckpointCorrupt, cp.Version)
	}
	var s state
	if err := json.Unmarshal(cp.Payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCheckpointCorrupt, err)
	}
	return &s, nil
}
