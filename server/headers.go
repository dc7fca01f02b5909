package server

import (
	"net/http"
	"strconv"
	"time"
)

// Header decorates a response with caching headers.
type Header func(h http.Header, now time.Time)

// MaxAge lets clients and CDNs cache a response for the given duration.
func MaxAge(d time.Duration) Header {
	return func(h http.Header, now time.Time) {
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(d/time.Second)))
	}
}

// FixedCache lets a response be cached until the next top of the hour (UTC),
// so every client's copy expires at the same moment.
func FixedCache() Header {
	return func(h http.Header, now time.Time) {
		now = now.UTC()
		next := now.Truncate(time.Hour).Add(time.Hour)
		seconds := int(next.Sub(now) / time.Second)
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Cache-Control", "public, max-age="+strconv.Itoa(seconds))
		h.Set("Expires", next.Format(http.TimeFormat))
	}
}
