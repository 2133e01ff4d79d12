package ingest

import (
	"fmt"
	"time"

	"github.com/Luismorlan/community/model"
	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	// DateLayout is how Twitter jobs persist since and until.
	DateLayout = "2006-01-02"
	// TimestampLayout is how Discord and GitHub jobs persist since.
	TimestampLayout = time.RFC3339
)

// DecodeConfig decodes the job config into out. Keys listed in required must be
// present, there is no other validation.
func DecodeConfig(job *model.Job, out interface{}, required ...string) error {
	config, err := job.ConfigMap()
	if err != nil {
		return err
	}
	for _, key := range required {
		if _, ok := config[key]; !ok {
			return fmt.Errorf("config of job %d is missing %q", job.Id, key)
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "fail to create config decoder")
	}
	if err := decoder.Decode(config); err != nil {
		return errors.Wrapf(err, "fail to decode config of job %d", job.Id)
	}
	return nil
}

// NormalizeTimes rewrites the given time keys of config with layout. Values may
// be time.Time or any string dateparse understands. Absent or empty keys are
// dropped.
func NormalizeTimes(config map[string]interface{}, layout string, keys ...string) (map[string]interface{}, error) {
	res := map[string]interface{}{}
	for k, v := range config {
		res[k] = v
	}
	for _, key := range keys {
		v, ok := res[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case nil:
			delete(res, key)
		case time.Time:
			res[key] = val.UTC().Format(layout)
		case *time.Time:
			if val == nil {
				delete(res, key)
				continue
			}
			res[key] = val.UTC().Format(layout)
		case string:
			if val == "" {
				delete(res, key)
				continue
			}
			t, err := dateparse.ParseIn(val, time.UTC)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid %s %q", key, val)
			}
			res[key] = t.UTC().Format(layout)
		default:
			return nil, fmt.Errorf("invalid %s of type %T", key, v)
		}
	}
	return res, nil
}

// ParseTime parses a persisted since or until, an empty string is the zero
// time.
func ParseTime(value, layout string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid time %q", value)
	}
	return t.UTC(), nil
}
