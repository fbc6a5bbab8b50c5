package cache

import "errors"

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is a small TTL key/value store. Values are opaque strings; callers
// that need structure JSON-encode before Put and decode after Get.
type Store interface {
	Get(key string) (string, error)
	Put(key string, value string, ttlSeconds int) error
	Remove(key string) error
}
