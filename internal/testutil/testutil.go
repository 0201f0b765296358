// Package testutil provides infrastructure helpers for integration tests: an
// isolated Postgres schema and a Redis database, skipped when unavailable.
//
// Set TEST_REQUIRE_INFRA=true (or TEST_REQUIRE_DB / TEST_REQUIRE_REDIS) to
// turn the skips into failures in CI.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/espeech/espeech-api/internal/migrate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// testDSN points at the docker-compose test profile unless overridden.
// CI sets TEST_DB_PORT=5432.
func testDSN(searchPath string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(env("TEST_DB_USER", "espeech"), env("TEST_DB_PASSWORD", "espeech")),
		Host:   net.JoinHostPort(env("TEST_DB_HOST", "localhost"), env("TEST_DB_PORT", "55432")),
		Path:   "/" + env("TEST_DB_NAME", "espeech"),
	}
	q := url.Values{}
	q.Set("sslmode", env("DB_SSL_MODE", "disable"))
	if searchPath != "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SetupEphemeralSchemaDB migrates a fresh schema and returns a connection
// whose search_path points at it. The schema is dropped on cleanup.
func SetupEphemeralSchemaDB(t testing.TB) *sql.DB {
	t.Helper()

	admin, err := openPinged(testDSN(""))
	if err != nil {
		unavailable(t, required("TEST_REQUIRE_DB"), "test database not available: %v", err)
	}

	schema := "t_" + randomHex(4)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := openPinged(testDSN(schema + ",public"))
	if err != nil {
		_ = admin.Close()
		t.Fatalf("open schema %s: %v", schema, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, dropErr := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); dropErr != nil {
			t.Logf("drop schema %s: %v", schema, dropErr)
		}
		_ = admin.Close()
	})

	if err = migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	return db
}

func openPinged(dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*cfg)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SetupTestRedis returns a client on an empty Redis database. REDIS_ADDR
// selects the server and TEST_REDIS_DB pins the database index.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr := env("REDIS_ADDR", "localhost:56379")
	client := redis.NewClient(&redis.Options{Addr: addr, DB: testRedisDB(t, addr)})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		unavailable(t, required("TEST_REQUIRE_REDIS"), "redis not available at %s: %v", addr, err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush redis: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testRedisDB reserves one of databases 1..15 with a lock key in database 0
// so parallel test packages do not flush each other's keys.
func testRedisDB(t testing.TB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	owner := fmt.Sprintf("%d:%s", os.Getpid(), randomHex(4))
	for i := 1; i <= 15; i++ {
		key := fmt.Sprintf("espeech:testutil:db_lock:%d", i)
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			defer cancel()
			_ = meta.Del(ctx, key).Err()
			_ = meta.Close()
		})
		return i
	}
	_ = meta.Close()
	return 1
}

func unavailable(t testing.TB, mustHave bool, format string, args ...any) {
	t.Helper()
	if mustHave {
		t.Fatalf(format, args...)
	}
	t.Skipf(format, args...)
}

func required(key string) bool {
	return truthy(os.Getenv(key)) || truthy(os.Getenv("TEST_REQUIRE_INFRA"))
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}
