package cache

import "fmt"

func SeriesKey(days int) string {
	return fmt.Sprintf("series:days:%d", days)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
