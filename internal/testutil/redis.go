//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// DB is one numbered database of the test redis. Failures end the test.
type DB struct {
	t      *testing.T
	num    int
	client *redis.Client
}

// OpenDB connects to database num of the redis at addr. The connection is
// closed when the test ends.
func OpenDB(t *testing.T, addr string, num int) *DB {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr, DB: num})
	t.Cleanup(func() { client.Close() })
	return &DB{t: t, num: num, client: client}
}

func entryKey(table, key string) string {
	return table + "|" + key
}

// Flush removes every key of the database.
func (d *DB) Flush() {
	d.t.Helper()
	if err := d.client.FlushDB(context.Background()).Err(); err != nil {
		d.t.Fatalf("flushing DB %d: %v", d.num, err)
	}
}

// Write stores one hash entry.
func (d *DB) Write(table, key string, fields map[string]string) {
	d.t.Helper()
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := d.client.HSet(context.Background(), entryKey(table, key), args...).Err(); err != nil {
		d.t.Fatalf("DB %d: writing %s: %v", d.num, entryKey(table, key), err)
	}
}

// Read returns the fields of one hash entry, empty when it does not exist.
func (d *DB) Read(table, key string) map[string]string {
	d.t.Helper()
	vals, err := d.client.HGetAll(context.Background(), entryKey(table, key)).Result()
	if err != nil {
		d.t.Fatalf("DB %d: reading %s: %v", d.num, entryKey(table, key), err)
	}
	return vals
}

// Exists reports whether an entry is present.
func (d *DB) Exists(table, key string) bool {
	d.t.Helper()
	n, err := d.client.Exists(context.Background(), entryKey(table, key)).Result()
	if err != nil {
		d.t.Fatalf("DB %d: checking %s: %v", d.num, entryKey(table, key), err)
	}
	return n > 0
}

// Keys returns the keys of a table, without the table prefix.
func (d *DB) Keys(table string) []string {
	d.t.Helper()
	keys, err := d.client.Keys(context.Background(), table+"|*").Result()
	if err != nil {
		d.t.Fatalf("DB %d: listing %s: %v", d.num, table, err)
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k[len(table)+1:]
	}
	return out
}
