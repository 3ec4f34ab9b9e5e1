package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dreamdecor.ai/internal/persistence/archive"
	"dreamdecor.ai/internal/persistence/savestore"
	"dreamdecor.ai/internal/transport/observer"
	"dreamdecor.ai/internal/transport/ws"
)

type routerConfig struct {
	WS       *ws.Server
	Observer *observer.Server
	Store    savestore.Store
	// Deleted saves are archived under ArchiveDir first; empty skips it.
	ArchiveDir  string
	Logger      *log.Logger
	EnableAdmin bool
	Started     time.Time
}

func newRouter(cfg routerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Get("/metrics", metricsHandler(cfg))
	r.Get("/v1/ws", cfg.WS.Handler())

	if cfg.EnableAdmin {
		// Local-only; read and delete player saves.
		r.Route("/admin/v1/saves", func(r chi.Router) {
			r.Use(loopbackOnly)
			r.Get("/", listSaves(cfg.Store))
			r.Get("/{identity}", getSave(cfg.Store))
			r.Delete("/{identity}", deleteSave(cfg.Store, cfg.ArchiveDir, cfg.Logger))
		})
		if cfg.Observer != nil {
			// Read-only spectating of identified rooms.
			r.Get("/admin/v1/observer/bootstrap", cfg.Observer.BootstrapHandler())
			r.Get("/admin/v1/observer/ws", cfg.Observer.WSHandler())
		}
	} else if cfg.Logger != nil {
		cfg.Logger.Printf("admin endpoints disabled (DD_ENABLE_ADMIN_HTTP=false)")
	}
	return r
}

func metricsHandler(cfg routerConfig) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s := cfg.WS.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP dreamdecor_ws_connections Currently connected renderers.\n")
		fmt.Fprintf(rw, "# TYPE dreamdecor_ws_connections gauge\n")
		fmt.Fprintf(rw, "dreamdecor_ws_connections %d\n", s.Connections)

		fmt.Fprintf(rw, "# HELP dreamdecor_ws_connections_total Renderer connections accepted since start.\n")
		fmt.Fprintf(rw, "# TYPE dreamdecor_ws_connections_total counter\n")
		fmt.Fprintf(rw, "dreamdecor_ws_connections_total %d\n", s.ConnectionsTotal)

		fmt.Fprintf(rw, "# HELP dreamdecor_acts_total ACT frames applied to a room.\n")
		fmt.Fprintf(rw, "# TYPE dreamdecor_acts_total counter\n")
		fmt.Fprintf(rw, "dreamdecor_acts_total %d\n", s.Acts)

		fmt.Fprintf(rw, "# HELP dreamdecor_acts_failed_total ACT frames answered with an error code.\n")
		fmt.Fprintf(rw, "# TYPE dreamdecor_acts_failed_total counter\n")
		fmt.Fprintf(rw, "dreamdecor_acts_failed_total %d\n", s.ActsFailed)

		fmt.Fprintf(rw, "# HELP dreamdecor_uptime_seconds Seconds since the server started.\n")
		fmt.Fprintf(rw, "# TYPE dreamdecor_uptime_seconds gauge\n")
		fmt.Fprintf(rw, "dreamdecor_uptime_seconds %.0f\n", time.Since(cfg.Started).Seconds())
	}
}

func listSaves(store savestore.Store) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		headers, err := store.List(r.Context())
		if err != nil {
			writeJSONStatus(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true, "saves": headers})
	}
}

func getSave(store savestore.Store) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "identity")
		snap, ok, err := store.Load(r.Context(), id)
		switch {
		case err != nil:
			writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		case !ok:
			writeJSONStatus(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "no save"})
		default:
			writeJSONStatus(rw, http.StatusOK, snap)
		}
	}
}

func deleteSave(store savestore.Store, archiveDir string, logger *log.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "identity")
		if archiveDir != "" {
			snap, ok, err := store.Load(r.Context(), id)
			if err != nil {
				writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			if ok {
				path, err := archive.ArchiveSave(archiveDir, snap, "admin http delete", time.Now())
				if err != nil {
					writeJSONStatus(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
					return
				}
				if logger != nil {
					logger.Printf("admin: archived save identity=%q path=%s", id, path)
				}
			}
		}
		if err := store.Delete(r.Context(), id); err != nil {
			writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if logger != nil {
			logger.Printf("admin: deleted save identity=%q", id)
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true})
	}
}

func writeJSONStatus(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
