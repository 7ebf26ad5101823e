package crawlwatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// SnapshotDecoder turns a status response body into a [Snapshot].
//
// A decoder returns an error when the body does not have the expected shape;
// the watcher reports it as a [ProtocolError] and ends the session.
//
// SnapshotDecoder functions are called within a panic recovery boundary. If
// a decoder panics, the fetch fails with a ProtocolError carrying a
// correlation ID and the stack trace is logged.
//
// Built-in decoders: [ListDecoder], [ListDecoderAt], [TaskDecoder],
// [FirstDecoder] for composition, and [DefaultDecoder].
type SnapshotDecoder func(body []byte) (Snapshot, error)

// errShape is wrapped by decoders when the body is valid JSON of the wrong
// shape.
var errShape = errors.New("unexpected body shape")

// record field aliases, most specific first: the crawler API speaks
// ota_name / last_crawl_status, the canonical form is source_name / state
var (
	sourceFields  = []string{"source_name", "ota_name", "source", "ota"}
	stateFields   = []string{"state", "last_crawl_status", "status"}
	lastRunFields = []string{"last_run_at", "last_crawled_at", "finished_at"}
	messageFields = []string{"message", "last_crawl_message", "result_message"}
	idFields      = []string{"id", "task_id", "target_id"}
)

// ListDecoder decodes a top-level JSON array of target records.
//
// Each record must carry an id and a state. Field names from the crawler API
// (ota_name, last_crawl_status, last_crawled_at, last_crawl_message) and
// the canonical names (source_name, state, last_run_at, message) are both
// accepted. Numeric ids are rendered as strings exactly as sent.
//
// State strings are matched case-insensitively; see [ParseTargetState].
var ListDecoder SnapshotDecoder = func(body []byte) (Snapshot, error) {
	var data interface{}
	if err := unmarshalJSON(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return decodeList(data)
}

// ListDecoderAt returns a [SnapshotDecoder] that finds the record array at a
// dot-notation path inside a JSON object.
//
// For example, "results" decodes a paginated {"count": 2, "results": [...]}
// body and "data.targets" navigates {"data": {"targets": [...]}}.
func ListDecoderAt(path string) SnapshotDecoder {
	parts := strings.Split(path, ".")

	return func(body []byte) (Snapshot, error) {
		var data interface{}
		if err := unmarshalJSON(body, &data); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}

		value, ok := extractJSONPath(data, parts)
		if !ok {
			return nil, fmt.Errorf("%w: no field at %q", errShape, path)
		}
		return decodeList(value)
	}
}

// TaskDecoder decodes a single background-task object such as
// {"status": "SUCCESS", "result_message": "done"} into a one-target
// snapshot.
//
// Task runner states are folded onto target states: STARTED, RETRY and
// RECEIVED count as PENDING, REVOKED counts as FAILURE. The target id is
// taken from the body's id or task_id field, or "task" if there is none.
var TaskDecoder SnapshotDecoder = func(body []byte) (Snapshot, error) {
	var obj map[string]interface{}
	if err := unmarshalJSON(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: task body must be a JSON object: %v", errShape, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: task body is null", errShape)
	}

	target, err := decodeRecord(obj, true)
	if err != nil {
		return nil, err
	}
	if target.ID == "" {
		target.ID = "task"
	}
	if target.SourceName == "" {
		target.SourceName = "task"
	}
	return Snapshot{target}, nil
}

// FirstDecoder returns a [SnapshotDecoder] that tries decoders in order and
// returns the first successful result.
//
// If every decoder fails, the error of the last one is returned.
//
// Example:
//
//	// bare array first, then a paginated envelope
//	decoder := crawlwatch.FirstDecoder(
//	    crawlwatch.ListDecoder,
//	    crawlwatch.ListDecoderAt("results"),
//	)
func FirstDecoder(decoders ...SnapshotDecoder) SnapshotDecoder {
	return func(body []byte) (Snapshot, error) {
		err := errors.New("no decoders configured")
		for _, decoder := range decoders {
			var snap Snapshot
			snap, err = decoder(body)
			if err == nil {
				return snap, nil
			}
		}
		return nil, err
	}
}

// DefaultDecoder is the [SnapshotDecoder] used when none is configured.
//
// It accepts a bare record array and falls back to a paginated envelope with
// a "results" field.
var DefaultDecoder = FirstDecoder(
	ListDecoder,
	ListDecoderAt("results"),
)

// ParseTargetState maps a remote state string onto a [TargetState].
//
// Matching is case-insensitive. Besides the four canonical names it accepts
// the common task-runner spellings (STARTED, RETRY, RECEIVED, REVOKED) and
// "never run" with a space. Empty and unknown strings are an error.
func ParseTargetState(s string) (TargetState, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")

	switch normalized {
	case "PENDING", "STARTED", "RETRY", "RECEIVED", "RUNNING":
		return StatePending, nil
	case "SUCCESS":
		return StateSuccess, nil
	case "FAILURE", "REVOKED":
		return StateFailure, nil
	case "NEVER_RUN":
		return StateNeverRun, nil
	default:
		return "", fmt.Errorf("unknown state %q", s)
	}
}

// decodeList decodes a JSON array value into a snapshot.
func decodeList(data interface{}) (Snapshot, error) {
	items, ok := data.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON array, got %s", errShape, jsonKind(data))
	}

	snap := make(Snapshot, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: record %d is %s, not an object", errShape, i, jsonKind(item))
		}
		target, err := decodeRecord(obj, false)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		snap = append(snap, target)
	}
	return snap, nil
}

// decodeRecord builds one TargetStatus from a JSON object. An id is
// required unless optionalID is set.
func decodeRecord(obj map[string]interface{}, optionalID bool) (TargetStatus, error) {
	var target TargetStatus

	target.ID = firstScalar(obj, idFields)
	if target.ID == "" && !optionalID {
		return TargetStatus{}, fmt.Errorf("%w: missing id", errShape)
	}

	rawState, ok := firstField(obj, stateFields)
	if !ok {
		return TargetStatus{}, fmt.Errorf("%w: missing state", errShape)
	}
	stateStr, ok := rawState.(string)
	if !ok {
		return TargetStatus{}, fmt.Errorf("%w: state is %s, not a string", errShape, jsonKind(rawState))
	}
	if strings.TrimSpace(stateStr) == "" {
		return TargetStatus{}, fmt.Errorf("%w: empty state", errShape)
	}
	state, err := ParseTargetState(stateStr)
	if err != nil {
		return TargetStatus{}, fmt.Errorf("%w: %v", errShape, err)
	}
	target.State = state

	target.SourceName = firstScalar(obj, sourceFields)
	target.Message = firstScalar(obj, messageFields)

	if raw := firstScalar(obj, lastRunFields); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return TargetStatus{}, fmt.Errorf("%w: invalid timestamp %q", errShape, raw)
		}
		target.LastRunAt = &ts
	}

	return target, nil
}

// unmarshalJSON decodes a single JSON value keeping numbers as json.Number,
// so large integer ids survive intact.
func unmarshalJSON(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// extractJSONPath walks a JSON structure using dot notation parts.
func extractJSONPath(data interface{}, parts []string) (interface{}, bool) {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// firstField returns the first present field among names.
func firstField(obj map[string]interface{}, names []string) (interface{}, bool) {
	for _, name := range names {
		if v, ok := obj[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// firstScalar returns the first non-null field among names rendered as a
// string. Objects and arrays are ignored.
func firstScalar(obj map[string]interface{}, names []string) string {
	for _, name := range names {
		switch v := obj[name].(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "an object"
	case []interface{}:
		return "an array"
	case string:
		return "a string"
	case json.Number, float64:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
