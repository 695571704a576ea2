package blackboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultProjectCacheSize bounds the in-process cache of completed projects.
const DefaultProjectCacheSize = 256

// Client provides instance-scoped Redis operations for the blackboard.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string

	// completed projects are immutable, so they can be served from memory
	cache *lru.Cache[string, *Project]
}

// NewClient creates a new blackboard client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Atelier instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	cache, err := lru.New[string, *Project](DefaultProjectCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create project cache: %w", err)
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		cache:        cache,
	}, nil
}

// InstanceName returns the namespace this client writes to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveProject writes a project snapshot to Redis, indexes it by creation time
// and publishes it on the project events channel.
// Saving the same project repeatedly overwrites the previous snapshot.
func (c *Client) SaveProject(ctx context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	hash, err := ProjectToHash(p)
	if err != nil {
		return fmt.Errorf("failed to serialize project: %w", err)
	}

	key := ProjectKey(c.instanceName, p.ID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, hash)
	pipe.ZAdd(ctx, ProjectIndexKey(c.instanceName), redis.Z{
		Score:  float64(p.CreatedAtMs),
		Member: p.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write project to Redis: %w", err)
	}

	if p.Status == ProjectStatusCompleted {
		c.cache.Add(p.ID, p.Clone())
	} else {
		c.cache.Remove(p.ID)
	}

	projectJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal project for event: %w", err)
	}
	if err := c.rdb.Publish(ctx, ProjectEventsChannel(c.instanceName), projectJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish project event: %w", err)
	}

	return nil
}

// GetProject retrieves a project by ID.
// Returns (nil, redis.Nil) if the project doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	if cached, ok := c.cache.Get(projectID); ok {
		return cached.Clone(), nil
	}

	hashData, err := c.rdb.HGetAll(ctx, ProjectKey(c.instanceName, projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read project from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	project, err := HashToProject(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize project: %w", err)
	}

	if project.Status == ProjectStatusCompleted {
		c.cache.Add(project.ID, project.Clone())
	}

	return project, nil
}

// ListProjects returns every stored project, oldest first.
// Index entries whose hash has disappeared are skipped.
func (c *Client) ListProjects(ctx context.Context) ([]*Project, error) {
	ids, err := c.rdb.ZRange(ctx, ProjectIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read project index: %w", err)
	}

	projects := make([]*Project, 0, len(ids))
	for _, id := range ids {
		p, err := c.GetProject(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, nil
}

// ScanProjects returns the IDs of projects whose ID starts with prefix.
// Uses SCAN so it never blocks Redis on large instances.
func (c *Client) ScanProjects(ctx context.Context, prefix string) ([]string, error) {
	pattern := ProjectKeyPattern(c.instanceName, prefix)
	keyPrefix := ProjectKey(c.instanceName, "")

	var ids []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan projects: %w", err)
	}

	return ids, nil
}

// DeleteProject removes a project and its index entry.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, ProjectKey(c.instanceName, projectID))
	pipe.ZRem(ctx, ProjectIndexKey(c.instanceName), projectID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	c.cache.Remove(projectID)
	return nil
}

// CountProjects returns the number of indexed projects.
func (c *Client) CountProjects(ctx context.Context) (int64, error) {
	n, err := c.rdb.ZCard(ctx, ProjectIndexKey(c.instanceName)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

// SaveWeights persists an agent's strategy weight table.
func (c *Client) SaveWeights(ctx context.Context, role Role, weights map[string]float64) error {
	if len(weights) == 0 {
		return nil
	}
	if err := c.rdb.HSet(ctx, WeightsKey(c.instanceName, role), WeightsToHash(weights)).Err(); err != nil {
		return fmt.Errorf("failed to write weights for %s: %w", role, err)
	}
	return nil
}

// LoadWeights reads an agent's persisted weight table.
// Returns an empty map (not an error) when nothing has been saved yet.
func (c *Client) LoadWeights(ctx context.Context, role Role) (map[string]float64, error) {
	raw, err := c.rdb.HGetAll(ctx, WeightsKey(c.instanceName, role)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read weights for %s: %w", role, err)
	}
	weights, err := HashToWeights(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode weights for %s: %w", role, err)
	}
	return weights, nil
}

// PublishMessage publishes a routed bus message on the message events channel.
func (c *Client) PublishMessage(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}
	if err := c.rdb.Publish(ctx, MessageEventsChannel(c.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}
	return nil
}

// MessageSubscription represents an active Pub/Sub subscription to message events.
// Caller must call Close() when done to clean up resources.
type MessageSubscription struct {
	events <-chan *MessageEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of message events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *MessageSubscription) Events() <-chan *MessageEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *MessageSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *MessageSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeMessageEvents subscribes to routed bus messages for this instance.
// Caller must call subscription.Close() when done.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once, so a slow subscriber may miss events.
func (c *Client) SubscribeMessageEvents(ctx context.Context) (*MessageSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, MessageEventsChannel(c.instanceName))

	// Wait for the subscription to be confirmed so no early publish is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to message events: %w", err)
	}

	eventsChan := make(chan *MessageEvent, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event MessageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal message event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &MessageSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetProject returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
