package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamAdder is the subset of the go-redis client used to append to a stream.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamValues flattens values into the string form stored by XADD.
// Non-scalar values are JSON encoded.
func StreamValues(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []byte:
			out[k] = string(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out[k] = string(b)
		}
	}
	return out, nil
}

// PublishToStream appends values to stream, trimming it to roughly maxLen entries when maxLen > 0.
func PublishToStream(ctx context.Context, client StreamAdder, stream string, maxLen int64, values map[string]any) (string, error) {
	flat, err := StreamValues(values)
	if err != nil {
		return "", err
	}
	args := &redis.XAddArgs{Stream: stream, Values: flat}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return client.XAdd(ctx, args).Result()
}

// PublishJSONToStream publishes data as a single JSON "data" field with a unix "timestamp".
func PublishJSONToStream(ctx context.Context, client StreamAdder, stream string, maxLen int64, kind string, data any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return PublishToStream(ctx, client, stream, maxLen, map[string]any{
		"kind":      kind,
		"data":      string(b),
		"timestamp": time.Now().Unix(),
	})
}
