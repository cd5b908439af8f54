package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariel-frischer/stagetrail/internal/fingerprint"
)

// SkipContent is the content recorded for an optional stage the user chose
// not to run. It is fingerprinted like any other output.
var SkipContent = json.RawMessage(`{"_skipped":true}`)

// Envelope is the unit of persistence for one stage output.
type Envelope struct {
	Stage              string            `json:"stage"`
	Timestamp          time.Time         `json:"timestamp"`
	ParametersUsed     map[string]any    `json:"parameters_used"`
	Content            json.RawMessage   `json:"content"`
	Materialized       []string          `json:"materialized,omitempty"`
	Fingerprint        string            `json:"_fingerprint"`
	ParentFingerprints map[string]string `json:"_parent_fingerprints"`
}

// Record returns the envelope's fingerprint record.
func (e *Envelope) Record() fingerprint.Record {
	parents := make(map[string]string, len(e.ParentFingerprints))
	for k, v := range e.ParentFingerprints {
		parents[k] = v
	}
	return fingerprint.Record{Fingerprint: e.Fingerprint, ParentFingerprints: parents}
}

// Skipped reports whether the envelope is a skip sentinel.
func (e *Envelope) Skipped() bool {
	var probe struct {
		Skipped bool `json:"_skipped"`
	}
	if err := json.Unmarshal(e.Content, &probe); err != nil {
		return false
	}
	return probe.Skipped
}

// Encode renders the envelope as indented JSON.
func (e *Envelope) Encode() ([]byte, error) {
	out := *e
	if out.ParametersUsed == nil {
		out.ParametersUsed = map[string]any{}
	}
	if out.ParentFingerprints == nil {
		out.ParentFingerprints = map[string]string{}
	}
	if len(out.Content) == 0 {
		out.Content = json.RawMessage("null")
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("artifact: encode envelope for %s: %w", e.Stage, err)
	}
	return append(data, '\n'), nil
}

// DecodeEnvelope parses an envelope. Documents without a stage or a
// fingerprint are rejected so stray JSON files are never mistaken for
// artifacts.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("artifact: decode envelope: %w", err)
	}
	if env.Stage == "" {
		return nil, fmt.Errorf("artifact: decode envelope: missing stage")
	}
	if env.Fingerprint == "" {
		return nil, fmt.Errorf("artifact: decode envelope: missing fingerprint")
	}
	return &env, nil
}
