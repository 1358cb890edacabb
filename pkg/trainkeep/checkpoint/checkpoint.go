package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/pierrec/lz4/v4"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Extension is appended to every file the Saver writes.
const Extension = ".json.lz4"

// BestName is the basename (without Extension) of the best checkpoint copy.
const BestName = "model_best"

// MetricKey is the state key the metric is merged under.
const MetricKey = "metric"

// Kind distinguishes retained checkpoints from recovery snapshots.
type Kind string

const (
	KindCheckpoint Kind = "checkpoint"
	KindRecovery   Kind = "recovery"
)

// State is the caller's training state. Values must be JSON-serializable.
type State map[string]any

// Checkpoint is the persisted envelope around a training state.
type Checkpoint struct {
	// Metadata
	Version    int       `json:"version"`
	RunID      string    `json:"run_id"`
	Kind       Kind      `json:"kind"`
	Epoch      int       `json:"epoch"`
	BatchIndex *int      `json:"batch_index,omitempty"`
	Metric     *float64  `json:"metric,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Training state, metric included when present.
	State json.RawMessage `json:"state"`
}

// New creates a new checkpoint envelope.
// State must already be JSON-serialized.
func New(runID string, kind Kind, epoch int, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		RunID:     runID,
		Kind:      kind,
		Epoch:     epoch,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// WithMetric records the metric the checkpoint was saved under.
func (c *Checkpoint) WithMetric(metric float64) *Checkpoint {
	c.Metric = &metric
	return c
}

// WithBatch records the batch index of a recovery snapshot.
func (c *Checkpoint) WithBatch(batchIndex int) *Checkpoint {
	c.BatchIndex = &batchIndex
	return c
}

// Batch returns the recorded batch index, or 0 when none was recorded.
func (c *Checkpoint) Batch() int {
	if c.BatchIndex == nil {
		return 0
	}
	return *c.BatchIndex
}

// Marshal serializes a checkpoint to LZ4-compressed JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)

	if err := json.NewEncoder(zw).Encode(c); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal deserializes a checkpoint produced by Marshal.
func Unmarshal(data []byte) (*Checkpoint, error) {
	zr := lz4.NewReader(bytes.NewReader(data))

	var c Checkpoint
	if err := json.NewDecoder(zr).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if c.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, c.Version, Version)
	}
	return &c, nil
}

// DecodeState unmarshals the embedded training state.
func (c *Checkpoint) DecodeState() (State, error) {
	var s State
	if err := json.Unmarshal(c.State, &s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

// encodeState serializes state with the metric merged in.
// The caller's map is not modified.
func encodeState(state State, metric *float64) ([]byte, error) {
	merged := make(State, len(state)+1)
	maps.Copy(merged, state)
	if metric != nil {
		merged[MetricKey] = *metric
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Load reads and decodes the checkpoint at path.
// Returns an error wrapping ErrNotFound if path doesn't exist.
func Load(store FileStore, path string) (*Checkpoint, error) {
	data, err := store.Read(path)
	if err != nil {
		return nil, err
	}

	cp, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cp, nil
}
