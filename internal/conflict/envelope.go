package conflict

import (
	"encoding/json"
	"fmt"
)

const schemaVersion = 1

// Record kinds stored through the memory backend
const (
	kindConflict = "editing_conflict"
	kindPattern  = "user_editing_pattern"
)

// envelope tags every stored value with its kind and schema version
type envelope struct {
	Kind          string          `json:"kind"`
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

func encodeRecord(kind string, v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return json.Marshal(envelope{Kind: kind, SchemaVersion: schemaVersion, Data: data})
}

// decodeRecord unwraps an envelope of the expected kind. Bare values written
// before envelopes existed are decoded as-is.
func decodeRecord(raw json.RawMessage, kind string, into interface{}) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	if env.Kind == "" {
		return json.Unmarshal(raw, into)
	}
	if env.Kind != kind {
		return fmt.Errorf("expected %s record, got %s", kind, env.Kind)
	}
	if env.SchemaVersion > schemaVersion {
		return fmt.Errorf("%s schema version %d is newer than supported %d", kind, env.SchemaVersion, schemaVersion)
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		return fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return nil
}
