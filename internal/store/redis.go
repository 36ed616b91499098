package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mapvivid/cityroute/internal/model"
)

const jobKeyPrefix = "job:"
const jobChannelPrefix = "jobupdates:"

// Status transitions run as Lua scripts so the check-and-set is atomic
// against concurrent task deliveries. Each write publishes on the job's
// channel; subscribers re-read the hash for the full snapshot.
var (
	createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then return 0 end
redis.call("HSET", KEYS[1],
  "id", ARGV[1], "owner", ARGV[2], "status", ARGV[3],
  "input", ARGV[4], "createdAt", ARGV[5], "updatedAt", ARGV[5])
if tonumber(ARGV[6]) > 0 then redis.call("PEXPIRE", KEYS[1], ARGV[6]) end
redis.call("PUBLISH", KEYS[2], ARGV[3])
return 1`)

	claimScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then return -1 end
if status ~= "queued" then return 0 end
redis.call("HSET", KEYS[1], "status", "running", "updatedAt", ARGV[1])
redis.call("PUBLISH", KEYS[2], "running")
return 1`)

	completeScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then return -1 end
if status ~= "running" then return 0 end
redis.call("HSET", KEYS[1], "status", "done", "updatedAt", ARGV[1], "result", ARGV[2])
if ARGV[3] ~= "" then redis.call("HSET", KEYS[1], "debug", ARGV[3]) end
redis.call("PUBLISH", KEYS[2], "done")
return 1`)

	failScript = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then return -1 end
if status ~= "running" then return 0 end
redis.call("HSET", KEYS[1], "status", "error", "updatedAt", ARGV[1], "error", ARGV[2])
redis.call("PUBLISH", KEYS[2], "error")
return 1`)
)

// RedisStore persists jobs as Redis hashes and notifies subscribers
// through pub/sub.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration // 0 = keep forever
}

func NewRedisStore(rdb *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, retention: retention}
}

func jobKey(id string) string     { return jobKeyPrefix + id }
func jobChannel(id string) string { return jobChannelPrefix + id }

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	now := time.Now().UTC()
	job.Status = model.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	input, err := json.Marshal(job.Input)
	if err != nil {
		return errors.Wrap(err, "marshal job input")
	}

	n, err := createScript.Run(ctx, s.rdb,
		[]string{jobKey(job.ID), jobChannel(job.ID)},
		job.ID, job.OwnerIdentity, string(job.Status),
		string(input), now.Format(time.RFC3339Nano),
		s.retention.Milliseconds(),
	).Int()
	if err != nil {
		return errors.Wrap(err, "create job")
	}
	if n == 0 {
		return errors.Wrapf(ErrExists, "job %s", job.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read job")
	}
	if len(fields) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "job %s", id)
	}
	return jobFromHash(fields)
}

func (s *RedisStore) ClaimRunning(ctx context.Context, id string) (bool, error) {
	return s.runTransition(ctx, claimScript, id, time.Now().UTC().Format(time.RFC3339Nano))
}

func (s *RedisStore) Complete(ctx context.Context, id string, result *model.ItineraryResult, debug *model.DebugInfo) error {
	res, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	var dbg []byte
	if debug != nil {
		if dbg, err = json.Marshal(debug); err != nil {
			return errors.Wrap(err, "marshal debug")
		}
	}

	ok, err := s.runTransition(ctx, completeScript, id,
		time.Now().UTC().Format(time.RFC3339Nano), string(res), string(dbg))
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrConflict, "complete job %s", id)
	}
	return nil
}

func (s *RedisStore) Fail(ctx context.Context, id string, msg string) error {
	ok, err := s.runTransition(ctx, failScript, id,
		time.Now().UTC().Format(time.RFC3339Nano), Truncate(msg))
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrConflict, "fail job %s", id)
	}
	return nil
}

func (s *RedisStore) runTransition(ctx context.Context, script *redis.Script, id string, args ...interface{}) (bool, error) {
	n, err := script.Run(ctx, s.rdb, []string{jobKey(id), jobChannel(id)}, args...).Int()
	if err != nil {
		return false, errors.Wrap(err, "job transition")
	}
	switch n {
	case -1:
		return false, errors.Wrapf(ErrNotFound, "job %s", id)
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

func (s *RedisStore) Subscribe(ctx context.Context, id string) (<-chan *model.Job, func(), error) {
	// Subscribe before the initial read so a write between the two is
	// observed either in the snapshot or as a notification.
	pubsub := s.rdb.Subscribe(ctx, jobChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, errors.Wrap(err, "subscribe")
	}

	initial, err := s.Get(ctx, id)
	if err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan *model.Job, 1)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		send := func(job *model.Job) bool {
			select {
			case out <- job:
				return true
			case <-done:
				return false
			case <-ctx.Done():
				return false
			}
		}
		if !send(initial) {
			return
		}
		ch := pubsub.Channel()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				job, err := s.Get(ctx, id)
				if err != nil {
					return
				}
				if !send(job) {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func jobFromHash(fields map[string]string) (*model.Job, error) {
	job := &model.Job{
		ID:            fields["id"],
		OwnerIdentity: fields["owner"],
		Status:        model.JobStatus(fields["status"]),
		Error:         fields["error"],
	}

	if v := fields["input"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Input); err != nil {
			return nil, errors.Wrap(err, "unmarshal job input")
		}
	}
	if v := fields["result"]; v != "" {
		job.Result = &model.ItineraryResult{}
		if err := json.Unmarshal([]byte(v), job.Result); err != nil {
			return nil, errors.Wrap(err, "unmarshal job result")
		}
	}
	if v := fields["debug"]; v != "" {
		job.Debug = &model.DebugInfo{}
		if err := json.Unmarshal([]byte(v), job.Debug); err != nil {
			return nil, errors.Wrap(err, "unmarshal job debug")
		}
	}

	var err error
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["createdAt"]); err != nil {
		return nil, errors.Wrap(err, "parse createdAt")
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updatedAt"]); err != nil {
		return nil, errors.Wrap(err, "parse updatedAt")
	}
	return job, nil
}
