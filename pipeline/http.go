package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jonwraymond/reqpipe/cache"
	"github.com/jonwraymond/reqpipe/observe"
	"github.com/jonwraymond/reqpipe/transport"
)

// DefaultMaxRequestBody bounds request bodies accepted by ProxyHandler.
const DefaultMaxRequestBody = 1 << 20

// ProxyHandler serves requests under prefix through the pipeline. The rest
// of the path plus the query string is the upstream target:
//
//	GET /proxy/api/Issue/7        -> Read("/api/Issue/7")
//	GET /proxy/api/Issue/7?batch=1 -> ReadBatched("/api/Issue/7")
//	POST /proxy/api/Issue         -> Mutate("POST", "/api/Issue", body)
//
// Upstream status errors are relayed with their status code and body.
func (p *Pipeline) ProxyHandler(prefix string) http.Handler {
	prefix = strings.TrimRight(prefix, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := strings.TrimPrefix(r.URL.Path, prefix)
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		query := r.URL.Query()
		batched := query.Get("batch") == "1"
		query.Del("batch")
		if enc := query.Encode(); enc != "" {
			target += "?" + enc
		}

		var (
			payload []byte
			err     error
		)
		switch kind := cache.KindOf(r.Method); {
		case kind == cache.KindRead && batched:
			payload, err = p.ReadBatched(r.Context(), target)
		case kind == cache.KindRead:
			payload, err = p.Do(r.Context(), r.Method, target, nil)
		default:
			body, rerr := io.ReadAll(io.LimitReader(r.Body, DefaultMaxRequestBody))
			if rerr != nil {
				http.Error(w, rerr.Error(), http.StatusBadRequest)
				return
			}
			if len(body) == 0 {
				body = nil
			}
			payload, err = p.Do(r.Context(), r.Method, target, body)
		}

		if err != nil {
			p.writeError(w, r, target, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(payload)
		}
	})
}

func (p *Pipeline) writeError(w http.ResponseWriter, r *http.Request, target string, err error) {
	var se *transport.StatusError
	switch {
	case errors.As(err, &se):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(se.StatusCode)
		_, _ = w.Write(se.Body)
		return
	case errors.Is(err, ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
	p.logger.Warn(r.Context(), "proxy request failed",
		observe.F("method", r.Method),
		observe.F("target", target),
		observe.F("error", err))
}

// AdminHandler serves the operational endpoints:
//
//	GET  /admin/cache          cache size, capacity and keys
//	GET  /admin/stats          cache, in-flight and batching figures
//	POST /admin/cache/clear    drop every cached entry
//	POST /admin/batches/flush  flush every pending batch group
//	POST /admin/invalidate?target=/api/Issue/7
func (p *Pipeline) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/cache", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.CacheStats())
	})
	mux.HandleFunc("GET /admin/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Stats())
	})
	mux.HandleFunc("POST /admin/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		p.ClearCache(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
	})
	mux.HandleFunc("POST /admin/batches/flush", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"flushed": p.FlushAllBatches(r.Context())})
	})
	mux.HandleFunc("POST /admin/invalidate", func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("target")
		if target == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target is required"})
			return
		}
		writeJSON(w, http.StatusOK, p.Invalidate(r.Context(), target))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
