package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tiliavir/study-timer/internal/model"
)

// closeScript selects and closes one session atomically. KEYS[1] is the
// by-start index, KEYS[2] the open index. ARGV: key prefix, canonical id,
// shadow id, open-only flag, end time (Unix nanoseconds).
var closeScript = redis.NewScript(`
local prefix = ARGV[1]
local id = ARGV[2]
local shadow = ARGV[3]
local openOnly = ARGV[4] == '1'
local endedAt = ARGV[5]

local candidates
if id ~= '' then
  candidates = {id}
elseif openOnly then
  candidates = redis.call('ZREVRANGE', KEYS[2], 0, -1)
else
  candidates = redis.call('ZREVRANGE', KEYS[1], 0, -1)
end

for _, cid in ipairs(candidates) do
  local key = prefix .. cid
  local rec = redis.call('HMGET', key, 'shadow_id', 'subject', 'started_at', 'ended_at')
  if rec[3] then
    local ended = rec[4] or ''
    local ok = true
    if shadow ~= '' and rec[1] ~= shadow then ok = false end
    if openOnly and ended ~= '' then ok = false end
    if ok then
      local changed = '0'
      if ended == '' then
        redis.call('HSET', key, 'ended_at', endedAt)
        redis.call('ZREM', KEYS[2], cid)
        ended = endedAt
        changed = '1'
      end
      return {cid, rec[1] or '', rec[2] or '', rec[3], ended, changed}
    end
  end
end
return false
`)

// RedisStore keeps each session in a hash and indexes them in two sorted
// sets scored by start time: all sessions and open sessions.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed session store and checks connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("connecting", err)
	}
	return &RedisStore{client: client, prefix: "studytimer:"}, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisStore) byStartKey() string { return r.prefix + "sessions:by_start" }
func (r *RedisStore) openKey() string    { return r.prefix + "sessions:open" }

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, subject string, startedAt time.Time) (model.Session, error) {
	sess := newSession(subject, startedAt)
	if err := r.Insert(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Insert implements Store.
func (r *RedisStore) Insert(ctx context.Context, sess model.Session) error {
	ended := ""
	if sess.EndedAt != nil {
		ended = strconv.FormatInt(sess.EndedAt.UnixNano(), 10)
	}
	score := float64(sess.StartedAt.UnixMilli())

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(sess.ID),
			"shadow_id", sess.ShadowID,
			"subject", sess.Subject,
			"started_at", strconv.FormatInt(sess.StartedAt.UnixNano(), 10),
			"ended_at", ended,
		)
		pipe.ZAdd(ctx, r.byStartKey(), redis.Z{Score: score, Member: sess.ID})
		if sess.Open() {
			pipe.ZAdd(ctx, r.openKey(), redis.Z{Score: score, Member: sess.ID})
		} else {
			pipe.ZRem(ctx, r.openKey(), sess.ID)
		}
		return nil
	})
	if err != nil {
		return unavailable("inserting session", err)
	}
	return nil
}

// CloseOne implements Store.
func (r *RedisStore) CloseOne(ctx context.Context, f Filter, endedAt time.Time) (model.Session, bool, error) {
	f, ok := f.canonical()
	if !ok {
		return model.Session{}, false, ErrNoMatch
	}

	openOnly := "0"
	if f.OpenOnly {
		openOnly = "1"
	}
	reply, err := closeScript.Run(ctx, r.client,
		[]string{r.byStartKey(), r.openKey()},
		r.prefix+"session:", f.ID, f.ShadowID, openOnly, strconv.FormatInt(endedAt.UnixNano(), 10),
	).Result()
	if errors.Is(err, redis.Nil) {
		return model.Session{}, false, ErrNoMatch
	}
	if err != nil {
		return model.Session{}, false, unavailable("closing session", err)
	}
	sess, changed, err := decodeCloseReply(reply)
	if err != nil {
		return model.Session{}, false, unavailable("closing session", err)
	}
	return sess, changed, nil
}

// decodeCloseReply converts the close script's array reply.
func decodeCloseReply(reply any) (model.Session, bool, error) {
	vals, ok := reply.([]any)
	if !ok || len(vals) != 6 {
		return model.Session{}, false, fmt.Errorf("unexpected script reply %v", reply)
	}
	fields := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return model.Session{}, false, fmt.Errorf("unexpected script reply field %d: %v", i, v)
		}
		fields[i] = s
	}
	sess, err := decodeSessionFields(fields[0], map[string]string{
		"shadow_id":  fields[1],
		"subject":    fields[2],
		"started_at": fields[3],
		"ended_at":   fields[4],
	})
	if err != nil {
		return model.Session{}, false, err
	}
	return sess, fields[5] == "1", nil
}

// decodeSessionFields builds a session from its hash fields.
func decodeSessionFields(id string, h map[string]string) (model.Session, error) {
	started, err := strconv.ParseInt(h["started_at"], 10, 64)
	if err != nil {
		return model.Session{}, fmt.Errorf("session %s: bad started_at %q: %w", id, h["started_at"], err)
	}
	sess := model.Session{
		ID:        id,
		ShadowID:  h["shadow_id"],
		Subject:   h["subject"],
		StartedAt: time.Unix(0, started).UTC(),
	}
	if v := h["ended_at"]; v != "" {
		ended, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.Session{}, fmt.Errorf("session %s: bad ended_at %q: %w", id, v, err)
		}
		t := time.Unix(0, ended).UTC()
		sess.EndedAt = &t
	}
	return sess, nil
}

// List implements Store.
func (r *RedisStore) List(ctx context.Context, limit int) ([]model.Session, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, r.byStartKey(), 0, stop).Result()
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("listing sessions", err)
	}

	sessions := make([]model.Session, 0, len(ids))
	for i, id := range ids {
		h := cmds[i].Val()
		if len(h) == 0 {
			continue
		}
		sess, err := decodeSessionFields(id, h)
		if err != nil {
			return nil, unavailable("listing sessions", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
