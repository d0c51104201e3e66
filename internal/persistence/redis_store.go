package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tmattila/stagegate/pkg/api"
)

// RedisStore is an InstanceStore and EventStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<project_id>        => JSON-encoded WorkflowInstance
//	<prefix>ev:<project_id>          => LIST of JSON-encoded WorkflowEvents
//	<prefix>idx:all                  => SET of all project IDs
//	<prefix>idx:tpl:<template_id>    => SET of project IDs per template
//
// Event IDs are the 1-based positions in the event list, so RPUSH inside
// the optimistic transaction keeps them gapless. The compare-and-swap is
// implemented with WATCH on the instance and event keys: a concurrent
// write aborts the transaction and surfaces api.ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Ensure RedisStore implements the interfaces.
var _ InstanceStore = (*RedisStore)(nil)

var _ EventStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "stagegate:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "stagegate:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) keyInstance(projectID string) string {
	return s.prefix + "inst:" + projectID
}

func (s *RedisStore) keyEvents(projectID string) string {
	return s.prefix + "ev:" + projectID
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keyTemplate(templateID string) string {
	return s.prefix + "idx:tpl:" + templateID
}

func (s *RedisStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance, created api.WorkflowEvent) error {
	instKey := s.keyInstance(inst.ProjectID)

	data, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	created.ID = 1
	evData, err := encodeEvent(created)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, instKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return api.ErrDuplicateInstance
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, instKey, data, 0)
			pipe.RPush(ctx, s.keyEvents(inst.ProjectID), evData)
			pipe.SAdd(ctx, s.keyAll(), inst.ProjectID)
			pipe.SAdd(ctx, s.keyTemplate(inst.TemplateID), inst.ProjectID)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, instKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer created the key between WATCH and EXEC.
		return api.ErrDuplicateInstance
	}
	return err
}

func (s *RedisStore) GetInstance(ctx context.Context, projectID string) (*api.WorkflowInstance, error) {
	data, err := s.client.Get(ctx, s.keyInstance(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, api.ErrInstanceNotFound
		}
		return nil, err
	}
	return decodeInstance(data)
}

func (s *RedisStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	var ids []string
	var err error

	if filter.TemplateID != "" {
		ids, err = s.client.SMembers(ctx, s.keyTemplate(filter.TemplateID)).Result()
	} else {
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.WorkflowInstance{}, nil
		}
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.WorkflowInstance{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyInstance(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var instances []*api.WorkflowInstance
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		inst, err := decodeInstance(data)
		if err != nil {
			return nil, err
		}
		// The status index is the payload itself; filter after decode.
		if matchesFilter(inst, filter) {
			instances = append(instances, inst)
		}
	}

	return instances, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, projectID string, expectedVersion int64, mutate Mutator) (*api.WorkflowInstance, error) {
	instKey := s.keyInstance(projectID)
	evKey := s.keyEvents(projectID)

	var result *api.WorkflowInstance

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, instKey).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return api.ErrInstanceNotFound
			}
			return err
		}
		inst, err := decodeInstance(data)
		if err != nil {
			return err
		}
		if inst.Version != expectedVersion {
			return api.ErrVersionConflict
		}

		ev, err := mutate(inst)
		if err != nil {
			return err
		}
		inst.Version = expectedVersion + 1

		nextID, err := tx.LLen(ctx, evKey).Result()
		if err != nil {
			return err
		}
		ev.ID = nextID + 1

		newData, err := encodeInstance(inst)
		if err != nil {
			return err
		}
		evData, err := encodeEvent(*ev)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, instKey, newData, 0)
			pipe.RPush(ctx, evKey, evData)
			return nil
		})
		if err != nil {
			return err
		}

		result = inst
		return nil
	}

	err := s.client.Watch(ctx, txf, instKey, evKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, api.ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *RedisStore) ListEvents(ctx context.Context, projectID string, sinceID int64) ([]api.WorkflowEvent, error) {
	if sinceID < 0 {
		sinceID = 0
	}
	// Event IDs are 1-based list positions, so the events after sinceID
	// start at list index sinceID.
	items, err := s.client.LRange(ctx, s.keyEvents(projectID), sinceID, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]api.WorkflowEvent, 0, len(items))
	for _, item := range items {
		ev, err := decodeEvent([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
