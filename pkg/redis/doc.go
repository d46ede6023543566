// Package redis connects to Redis with retry and exposes a readiness probe.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// The returned client backs the distributed checkout lock.
package redis
