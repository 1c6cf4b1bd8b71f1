package codec

import (
	"encoding/json"
	"fmt"

	"prreview/internal/model"
)

// EncodeResult serializes a Result for the job store.
func EncodeResult(r model.Result) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResult parses a stored Result and checks that its summary agrees
// with its file list.
func DecodeResult(data []byte) (model.Result, error) {
	var r model.Result
	if err := decodeStrict(string(data), &r); err != nil {
		return model.Result{}, fmt.Errorf("decode result: %w", err)
	}
	if r.JobID == "" {
		return model.Result{}, fmt.Errorf("decode result: missing job_id")
	}
	if want := model.Summarize(r.Files); want != r.Summary {
		return model.Result{}, fmt.Errorf("decode result: summary %+v does not match files (want %+v)", r.Summary, want)
	}
	return r, nil
}

// EncodeStatus serializes a Status for the job store.
func EncodeStatus(s model.Status) ([]byte, error) {
	if !s.State.Valid() {
		return nil, fmt.Errorf("encode status: unknown state %q", s.State)
	}
	return json.Marshal(s)
}

// DecodeStatus parses a stored Status.
func DecodeStatus(data []byte) (model.Status, error) {
	var s model.Status
	if err := decodeStrict(string(data), &s); err != nil {
		return model.Status{}, fmt.Errorf("decode status: %w", err)
	}
	if !s.State.Valid() {
		return model.Status{}, fmt.Errorf("decode status: unknown state %q", s.State)
	}
	return s, nil
}
