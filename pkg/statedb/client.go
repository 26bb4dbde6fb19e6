// Package statedb publishes controller state into redis in the SONiC layout:
// admin configuration in CONFIG_DB, operational state in STATE_DB.
package statedb

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/hongkiaong/lacpd/pkg/util"
)

// Redis database numbers.
const (
	ConfigDB = 4
	StateDB  = 6
)

// TableChange represents a single change for pipeline execution.
type TableChange struct {
	Table  string
	Key    string
	Fields map[string]string // nil means delete
}

// RedisKey returns the "TABLE|key" form of the change.
func (c TableChange) RedisKey() string {
	return c.Table + "|" + c.Key
}

// Client wraps a redis client bound to one database.
type Client struct {
	client *redis.Client
	db     int
}

// NewClient creates a client for database db at addr.
func NewClient(addr string, db int) *Client {
	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
		db: db,
	}
}

// Connect tests the connection
func (c *Client) Connect(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis db %d: %w: %v", c.db, util.ErrNotConnected, err)
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Get reads one entry. It returns (nil, nil) if the entry does not exist.
func (c *Client) Get(ctx context.Context, table, key string) (map[string]string, error) {
	vals, err := c.client.HGetAll(ctx, table+"|"+key).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

// Exists checks if an entry exists
func (c *Client) Exists(ctx context.Context, table, key string) (bool, error) {
	n, err := c.client.Exists(ctx, table+"|"+key).Result()
	return n > 0, err
}

// TableKeys returns the entry keys of a table, without the table prefix.
func (c *Client) TableKeys(ctx context.Context, table string) ([]string, error) {
	keys, err := scanKeys(ctx, c.client, table+"|*", 100)
	if err != nil {
		return nil, fmt.Errorf("scanning keys for table %s: %w", table, err)
	}
	prefix := table + "|"
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, nil
}

// Table reads every entry of a table keyed by entry key.
func (c *Client) Table(ctx context.Context, table string) (map[string]map[string]string, error) {
	keys, err := c.TableKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(keys))
	for _, k := range keys {
		vals, err := c.Get(ctx, table, k)
		if err != nil {
			return nil, fmt.Errorf("reading %s|%s: %w", table, k, err)
		}
		if vals != nil {
			out[k] = vals
		}
	}
	return out, nil
}

// PipelineSet writes multiple entries atomically via a MULTI/EXEC pipeline.
func (c *Client) PipelineSet(ctx context.Context, changes []TableChange) error {
	if len(changes) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	queue(ctx, pipe, changes)
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return fmt.Errorf("pipeline exec: %w", err)
	}
	return nil
}

// ReplaceTables makes the given tables hold exactly the entries in changes.
// Stale keys are deleted and new entries written in one transaction.
func (c *Client) ReplaceTables(ctx context.Context, tables []string, changes []TableChange) error {
	var stale []string
	for _, table := range tables {
		keys, err := scanKeys(ctx, c.client, table+"|*", 100)
		if err != nil {
			return fmt.Errorf("scanning keys for table %s: %w", table, err)
		}
		stale = append(stale, keys...)
	}

	pipe := c.client.TxPipeline()
	if len(stale) > 0 {
		pipe.Del(ctx, stale...)
	}
	queue(ctx, pipe, changes)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("replacing tables %s: %w", strings.Join(tables, ","), err)
	}
	return nil
}

func queue(ctx context.Context, pipe redis.Pipeliner, changes []TableChange) {
	for _, change := range changes {
		redisKey := change.RedisKey()
		if change.Fields == nil {
			pipe.Del(ctx, redisKey)
		} else if len(change.Fields) == 0 {
			// Empty entry: NULL sentinel (SONiC convention)
			pipe.HSet(ctx, redisKey, "NULL", "NULL")
		} else {
			args := make([]interface{}, 0, len(change.Fields)*2)
			for k, v := range change.Fields {
				args = append(args, k, v)
			}
			pipe.HSet(ctx, redisKey, args...)
		}
	}
}

// scanKeys uses cursor-based SCAN (non-blocking, unlike KEYS *).
func scanKeys(ctx context.Context, client *redis.Client, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, nextCursor, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
