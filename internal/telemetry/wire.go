package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// #region encode
// Encode converts an event to its wire form. The payload is passed
// through JSON so any marshalable value (structs, typed maps, times)
// becomes a plain structpb tree.
func Encode(ev Event) (*structpb.Struct, error) {
	payload := map[string]any{}
	if len(ev.Payload) > 0 {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("normalize payload: %w", err)
		}
	}
	msg, err := structpb.NewStruct(map[string]any{
		"kind":    ev.Kind,
		"payload": payload,
		"sent_at": ev.SentAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return msg, nil
}

// #endregion encode

// #region decode
// Decode is the inverse of Encode.
func Decode(msg *structpb.Struct) (Event, error) {
	m := msg.AsMap()
	kind, _ := m["kind"].(string)
	if kind == "" {
		return Event{}, fmt.Errorf("decode event: missing kind")
	}
	ev := Event{Kind: kind}
	if p, ok := m["payload"].(map[string]any); ok {
		ev.Payload = p
	}
	if s, ok := m["sent_at"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Event{}, fmt.Errorf("decode sent_at: %w", err)
		}
		ev.SentAt = t
	}
	return ev, nil
}

// #endregion decode
