package main

import "testing"

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = redisOptions("myapp.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse azure string: %v", err)
	}
	if opts.Addr != "myapp.redis.cache.windows.net:6380" || opts.Password != "abc=" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := redisOptions(""); err == nil {
		t.Fatal("expected error for empty connection string")
	}
}
