package resource

import (
	"encoding/json"
	"time"
)

// OfflineMarker flags a resource that so far exists only in local storage.
const OfflineMarker = "_offline"

// Resource is an opaque JSON object. Only id, createdAt, updatedAt and the
// offline marker are interpreted by the data layer.
type Resource map[string]any

func (r Resource) ID() string {
	id, _ := r["id"].(string)
	return id
}

// UpdatedAt parses the updatedAt field. The zero time is returned when the
// field is missing or malformed.
func (r Resource) UpdatedAt() time.Time {
	s, _ := r["updatedAt"].(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r Resource) Offline() bool {
	v, _ := r[OfflineMarker].(bool)
	return v
}

// Clone returns a shallow copy.
func (r Resource) Clone() Resource {
	out := make(Resource, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with patch applied on top.
func (r Resource) Merge(patch map[string]any) Resource {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Touch sets updatedAt (and createdAt when absent) to now.
func (r Resource) Touch(now time.Time) {
	ts := Timestamp(now)
	if _, ok := r["createdAt"]; !ok {
		r["createdAt"] = ts
	}
	r["updatedAt"] = ts
}

// Timestamp formats t the way resources carry times.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Decode parses a single JSON object.
func Decode(data json.RawMessage) (Resource, error) {
	var r Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// DecodeList parses a JSON array of objects.
func DecodeList(data json.RawMessage) ([]Resource, error) {
	var list []Resource
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}
