// Package store defines the primitives qmin needs from its backing store:
// list push and atomic blocking pop, a metadata hash per queue, a discovery
// set and pub/sub publish.
//
// The interface is split in two. [Store] carries every non-blocking
// operation and is shared. [Popper] is a dedicated connection for blocking
// pops, obtained per consumer session through Store.NewPopper, because a
// connection blocked in BLPOP cannot serve anything else. Backends that can
// stream pub/sub messages also implement [Watcher].
//
// # Available Backends
//
//   - store/redis: Redis via go-redis
//   - store/memory: in-memory store for development and testing
//
// # Usage
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
package store
