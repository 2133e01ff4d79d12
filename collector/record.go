package collector

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// Record is one raw platform object. Clients keep the platform's own field
// names, stages promote the few they need to columns and store the rest.
type Record map[string]interface{}

// NewRecord converts any json serializable value into a Record.
func NewRecord(v interface{}) (Record, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "fail to marshal record")
	}
	res := Record{}
	if err := json.Unmarshal(bytes, &res); err != nil {
		return nil, errors.Wrap(err, "fail to unmarshal record")
	}
	return res, nil
}

// Get walks nested objects along path.
func (r Record) Get(path ...string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(r)
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// String returns the value at path as a string, numbers are formatted.
func (r Record) String(path ...string) string {
	v, ok := r.Get(path...)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Int64 returns the value at path as an int64. Platform ids arrive both as
// numbers and as strings.
func (r Record) Int64(path ...string) (int64, error) {
	v, ok := r.Get(path...)
	if !ok {
		return 0, fmt.Errorf("record has no %s", strings.Join(path, "."))
	}
	switch val := v.(type) {
	case float64:
		return int64(val), nil
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case json.Number:
		return val.Int64()
	case string:
		res, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "record %s is not an id", strings.Join(path, "."))
		}
		return res, nil
	default:
		return 0, fmt.Errorf("record %s has unexpected type %T", strings.Join(path, "."), v)
	}
}

// Time returns the value at path as a UTC time. Numbers are unix seconds,
// strings go through dateparse so every platform format is accepted.
func (r Record) Time(path ...string) (time.Time, error) {
	v, ok := r.Get(path...)
	if !ok {
		return time.Time{}, fmt.Errorf("record has no %s", strings.Join(path, "."))
	}
	switch val := v.(type) {
	case float64:
		return time.Unix(int64(val), 0).UTC(), nil
	case int64:
		return time.Unix(val, 0).UTC(), nil
	case time.Time:
		return val.UTC(), nil
	case string:
		t, err := dateparse.ParseIn(val, time.UTC)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "record %s is not a time", strings.Join(path, "."))
		}
		return t.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("record %s has unexpected type %T", strings.Join(path, "."), v)
	}
}

// Without returns a copy of r without keys and without empty values, the
// remainder is what gets stored as payload.
func (r Record) Without(keys ...string) Record {
	res := Record{}
	for k, v := range r {
		if isEmpty(v) {
			continue
		}
		res[k] = v
	}
	for _, k := range keys {
		delete(res, k)
	}
	return res
}

// JSON encodes r, a nil record encodes as an empty object. A record that
// cannot be encoded is logged and also stored as an empty object.
func (r Record) JSON() []byte {
	if r == nil {
		return []byte("{}")
	}
	bytes, err := json.Marshal(r)
	if err != nil {
		Logger.Log.WithError(err).WithField("keys", r.keys()).Error("fail to encode record, storing {}")
		return []byte("{}")
	}
	return bytes
}

func (r Record) keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case float64:
		return val == 0
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}
