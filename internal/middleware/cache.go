package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/config"
)

// captureWriter copies up to limit bytes of the response body while
// forwarding it to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		cw.buf.Write(b[:min(int64(len(b)), remain)])
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// truncated reports whether the body exceeded the capture limit.
func (cw *captureWriter) truncated() bool { return cw.limit > 0 && cw.size > cw.limit }

// ResponseCache caches successful responses to cacheable methods in
// Redis. Every key embeds a generation number which successful writes
// bump, so a cached read never outlives a mutation.
type ResponseCache struct {
	cfg     config.CacheConfig
	methods map[string]bool
	rdb     *redis.Client
	log     zerolog.Logger
}

// NewResponseCache returns nil when caching is disabled or Redis is
// unavailable. A nil cache's middleware passes requests through.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log zerolog.Logger) *ResponseCache {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &ResponseCache{cfg: cfg, methods: cfg.MethodSet(), rdb: rdb, log: log}
}

func (rc *ResponseCache) generationKey() string { return rc.cfg.Prefix + ":generation" }

func (rc *ResponseCache) generation(ctx context.Context) (int64, error) {
	n, err := rc.rdb.Get(ctx, rc.generationKey()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// Invalidate drops every cached response.
func (rc *ResponseCache) Invalidate(ctx context.Context) error {
	if rc == nil {
		return nil
	}
	return rc.rdb.Incr(ctx, rc.generationKey()).Err()
}

func (rc *ResponseCache) key(gen int64, r *http.Request) string {
	sum := sha1.Sum([]byte(r.Method + " " + r.URL.Path + "?" + r.URL.RawQuery))
	return fmt.Sprintf("%s:%d:%x", rc.cfg.Prefix, gen, sum[:])
}

// Middleware serves cached responses for cacheable methods and bumps the
// generation after every successful write.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if rc == nil {
			return next
		}
		return func(c echo.Context) error {
			if !rc.methods[c.Request().Method] {
				err := next(c)
				if err == nil && c.Response().Status < http.StatusBadRequest {
					if ierr := rc.Invalidate(context.WithoutCancel(c.Request().Context())); ierr != nil {
						rc.log.Warn().Err(ierr).Msg("cache invalidation failed")
					}
				}
				return err
			}
			return rc.serve(c, next)
		}
	}
}

func (rc *ResponseCache) serve(c echo.Context, next echo.HandlerFunc) error {
	ctx := c.Request().Context()
	gen, err := rc.generation(ctx)
	if err != nil {
		rc.log.Warn().Err(err).Msg("cache unavailable")
		return next(c)
	}
	key := rc.key(gen, c.Request())

	if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
		if status, hdr, body, ok := decodePayload(bs); ok {
			for k := range hdr {
				c.Response().Header().Set(k, hdr.Get(k))
			}
			c.Response().Header().Set("X-Cache", "HIT")
			c.Response().WriteHeader(status)
			_, err := c.Response().Write(body)
			return err
		}
	}

	cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(rc.cfg.MaxBodyBytes)}
	c.Response().Writer = cw
	c.Response().Header().Set("X-Cache", "MISS")

	if err := next(c); err != nil {
		return err
	}
	if cw.status != http.StatusOK || cw.truncated() {
		return nil
	}
	hdr := contentHeaders(c.Response().Header())
	payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
	if err == nil {
		err = rc.rdb.Set(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err()
	}
	if err != nil {
		rc.log.Warn().Err(err).Str("path", c.Request().URL.Path).Msg("cache store failed")
	}
	return nil
}

// cachedHeaders describe the representation. Headers tied to a single
// request, such as X-Request-Id or WWW-Authenticate, are never stored.
var cachedHeaders = []string{
	echo.HeaderContentType,
	echo.HeaderContentEncoding,
	"Content-Language",
	echo.HeaderContentDisposition,
	echo.HeaderLastModified,
	"ETag",
}

func contentHeaders(h http.Header) http.Header {
	out := make(http.Header, len(cachedHeaders))
	for _, k := range cachedHeaders {
		if vals := h.Values(k); len(vals) > 0 {
			out[k] = append([]string(nil), vals...)
		}
	}
	return out
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
