// Package redisstore implements the KV-backed SessionStore (spec §4.2)
// against a shared Redis deployment, using only the seven primitives the
// spec names: get, set, del, lpush, lrange, lrem, scan.
package redisstore

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
)

// client is a thin redigo pool wrapper exposing exactly the KV primitives
// §4.2 allows. redis_lock.Client (already in the dependency graph for the
// lock collaborator) is lock-focused and does not expose list/scan
// operations, so the store talks to redigo directly — the same transport
// redis_lock itself is built on.
type client struct {
	pool *redis.Pool
}

func newClient(network, address, password string) *client {
	pool := &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{}
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.Dial(network, address, opts...)
		},
	}
	return &client{pool: pool}
}

func (c *client) get(ctx context.Context, key string) (string, bool, error) {
	conn := c.pool.Get()
	defer conn.Close()
	v, err := redis.String(conn.Do("GET", key))
	if err == redis.ErrNil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *client) set(ctx context.Context, key, value string) error {
	conn := c.pool.Get()
	defer conn.Close()
	_, err := conn.Do("SET", key, value)
	return err
}

func (c *client) del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	conn := c.pool.Get()
	defer conn.Close()
	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := conn.Do("DEL", args...)
	return err
}

func (c *client) lpush(ctx context.Context, key, value string) error {
	conn := c.pool.Get()
	defer conn.Close()
	_, err := conn.Do("LPUSH", key, value)
	return err
}

func (c *client) lrange(ctx context.Context, key string, start, stop int) ([]string, error) {
	conn := c.pool.Get()
	defer conn.Close()
	return redis.Strings(conn.Do("LRANGE", key, start, stop))
}

func (c *client) lrem(ctx context.Context, key string, value string) error {
	conn := c.pool.Get()
	defer conn.Close()
	_, err := conn.Do("LREM", key, 0, value)
	return err
}

// scan runs one SCAN cursor step and returns the next cursor and the
// matched keys for this step. Callers loop until the returned cursor is 0.
func (c *client) scan(ctx context.Context, cursor uint64, match string, count int) (uint64, []string, error) {
	conn := c.pool.Get()
	defer conn.Close()
	reply, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", match, "COUNT", count))
	if err != nil {
		return 0, nil, err
	}
	next, err := redis.Uint64(reply[0], nil)
	if err != nil {
		return 0, nil, err
	}
	keys, err := redis.Strings(reply[1], nil)
	if err != nil {
		return 0, nil, err
	}
	return next, keys, nil
}
