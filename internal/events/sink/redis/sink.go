package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"seisreg/internal/events"
)

// appendOnce adds the event to the stream only if its sequence is newer
// than the last one recorded, so redelivery after a failure is harmless.
var appendOnce = redis.NewScript(`
local last = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) <= last then
	return 0
end
redis.call('XADD', KEYS[1], 'MAXLEN', '~', ARGV[4], '*', 'seq', ARGV[1], 'kind', ARGV[2], 'payload', ARGV[3])
redis.call('SET', KEYS[2], ARGV[1])
return 1
`)

// Sink appends events to a Redis stream front-ends can XREAD from.
type Sink struct {
	client redis.Scripter
	stream string
	maxLen int64
}

func New(client redis.Scripter, stream string, maxLen int64) *Sink {
	if maxLen <= 0 {
		maxLen = 100_000
	}
	return &Sink{client: client, stream: stream, maxLen: maxLen}
}

func (s *Sink) Name() string {
	return "redis"
}

func (s *Sink) cursorKey() string {
	return s.stream + ":last_seq"
}

func (s *Sink) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	keys := []string{s.stream, s.cursorKey()}
	if err := appendOnce.Run(ctx, s.client, keys, event.Seq, string(event.Kind), payload, s.maxLen).Err(); err != nil {
		return fmt.Errorf("append to stream %s: %w", s.stream, err)
	}
	return nil
}
