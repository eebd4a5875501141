package transport

import (
	"context"
	"sync/atomic"

	"github.com/jonwraymond/reqpipe/observe"
	"github.com/jonwraymond/reqpipe/resilience"
)

// WithResilience runs every Send through exec. A nil exec returns next.
//
// Retries resend the same Request, so Body is replayed as is. An attempt
// abandoned by a timeout may still finish; the first successful response
// is the one returned.
func WithResilience(next Transport, exec *resilience.Executor) Transport {
	if exec == nil {
		return next
	}
	return Func(func(ctx context.Context, req *Request) (*Response, error) {
		var resp atomic.Pointer[Response]
		err := exec.Execute(ctx, func(ctx context.Context) error {
			r, err := next.Send(ctx, req)
			if err != nil {
				return err
			}
			resp.CompareAndSwap(nil, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return resp.Load(), nil
	})
}

type cacheKeyCtx struct{}

// ContextWithCacheKey attaches the cache key of the request being sent, so
// telemetry can report it.
func ContextWithCacheKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, cacheKeyCtx{}, key)
}

// CacheKeyFromContext returns the key set by ContextWithCacheKey, or "".
func CacheKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(cacheKeyCtx{}).(string)
	return key
}

// WithObservability traces, measures and logs every Send through mw. A nil
// mw returns next.
func WithObservability(next Transport, mw *observe.Middleware) Transport {
	if mw == nil {
		return next
	}
	return Func(func(ctx context.Context, req *Request) (*Response, error) {
		var resp *Response
		send := mw.Wrap(func(ctx context.Context, _ observe.RequestMeta) error {
			r, err := next.Send(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})

		meta := observe.RequestMeta{
			Method: req.Method,
			Target: req.Target,
			Key:    CacheKeyFromContext(ctx),
		}
		if err := send(ctx, meta); err != nil {
			return nil, err
		}
		return resp, nil
	})
}
