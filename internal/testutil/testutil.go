//go:build integration

// Package testutil holds helpers for tests that run against a live redis.
// They are built only with the integration tag.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// Environment overrides for locating the test redis.
const (
	EnvRedisAddr      = "LACPD_TEST_REDIS_ADDR"
	EnvRedisContainer = "LACPD_TEST_REDIS_CONTAINER"

	defaultContainer = "lacpd-test-redis"
)

// RedisAddr returns host:port of the test redis: $LACPD_TEST_REDIS_ADDR if
// set, otherwise the IP of the docker container named by
// $LACPD_TEST_REDIS_CONTAINER (default lacpd-test-redis). It returns ""
// when neither is available.
func RedisAddr() string {
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		return addr
	}
	name := os.Getenv(EnvRedisContainer)
	if name == "" {
		name = defaultContainer
	}
	if ip := containerIP(name); ip != "" {
		return ip + ":6379"
	}
	return ""
}

func containerIP(name string) string {
	out, err := exec.Command("docker", "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}",
		name).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SkipIfNoRedis skips the test unless the test redis answers a PING.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skipf("no test redis: set %s or start container %s", EnvRedisAddr, defaultContainer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test redis at %s: %v", addr, err)
	}
}

// Context returns a context that ends after 30s or with the test.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
