package docstore

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
)

// Keys under which dynamic payloads carry identity metadata after a merge done
// by callers; QueryData removes exactly these.
const (
	metaKeyID  = "id"
	metaKeyRef = "ref"
)

// Record pairs a decoded document payload with its identity metadata. Identity
// is kept structurally separate from the payload type T, so payload fields can
// never collide with it and T can be written back to storage as-is.
type Record[T any] struct {
	ID   string
	Ref  string
	Data T
}

// recordFromSnapshot decodes a snapshot's payload into T and attaches the
// snapshot's identity.
func recordFromSnapshot[T any](snap Snapshot) (Record[T], error) {
	var data T
	if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(snap.Data(), &data); unmarshalErr != nil {
		return Record[T]{}, errors.Join(ErrDecodingPayloadFailed, unmarshalErr)
	}

	return Record[T]{ID: snap.ID(), Ref: snap.Ref(), Data: data}, nil
}

func recordsFromSnapshots[T any](snaps []Snapshot) ([]Record[T], error) {
	records := make([]Record[T], 0, len(snaps))

	for _, snap := range snaps {
		record, buildErr := recordFromSnapshot[T](snap)
		if buildErr != nil {
			return nil, buildErr
		}

		records = append(records, record)
	}

	return records, nil
}

// QueryData returns a copy of a dynamic payload with exactly the identity keys
// ("id", "ref") removed and nothing else, making it safe to write back to
// storage. Applying it to its own output is a no-op.
func QueryData(payload map[string]any) map[string]any {
	data := make(map[string]any, len(payload))

	for key, value := range payload {
		if key == metaKeyID || key == metaKeyRef {
			continue
		}

		data[key] = value
	}

	return data
}

// encodePayload marshals a payload for storage.
func encodePayload(payload any) ([]byte, error) {
	raw, marshalErr := jsoniter.ConfigFastest.Marshal(payload)
	if marshalErr != nil {
		return nil, errors.Join(ErrEncodingPayloadFailed, marshalErr)
	}

	return raw, nil
}
