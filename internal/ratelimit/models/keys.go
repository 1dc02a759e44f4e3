package models

import (
	"fmt"
	"strings"
)

const keyPrefix = "rl"

// Key builds the storage key for a (clientKey, bucket) pair.
func Key(clientKey string, bucket Bucket) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, bucket, sanitizeKeySegment(clientKey))
}

// sanitizeKeySegment escapes delimiter characters so a client key containing
// ':' cannot address another bucket. '_' is escaped first so the mapping stays
// injective: "a:b" -> "a_cb", "a_cb" -> "a__cb".
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
