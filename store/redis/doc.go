// Package redis implements store.Store on Redis lists, hashes, sets and
// pub/sub.
//
// Each Popper returned by NewPopper is a separate single-connection client
// cloned from the store's options, so a session blocked in BLPOP never
// holds up producer writes or metadata bookkeeping on the shared client.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client, redis.WithCircuitBreaker(5, 10*time.Second))
//	if err := s.Ping(ctx); err != nil { ... }
package redis
