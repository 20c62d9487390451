// Package redis implements store.Store on Redis with go-redis/v9.
//
// Each job is a msgpack-encoded string key. Sorted sets index it for the
// queries the engine needs:
//
//	herald:job:{id}        msgpack record
//	herald:status:{status} ids in that status, scored by id
//	herald:due             pending ids, scored by ScheduledFor (µs)
//	herald:done            done ids, scored by ExecutedAt (µs)
//
// Every transition runs under WATCH on the job key and commits the record
// and its index entries in one MULTI/EXEC, so a concurrent writer forces a
// retry instead of a lost update.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
