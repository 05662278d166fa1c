package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/source"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

type seriesRequest struct {
	Deployment string `json:"deployment"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	seed := flag.Int64("seed", 42, "simulator seed")
	degraded := flag.String("degraded", "", "comma-separated deployment=hours pairs carrying a failure scenario")
	flag.Parse()

	sim := source.NewSimulatorSource(source.SimulatorConfig{Seed: *seed, Degraded: parseDegraded(*degraded)})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc(source.DefaultSeriesPath, func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req seriesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		start, err := utils.ParseRFC3339(req.Start)
		if err != nil {
			http.Error(w, "invalid start", http.StatusBadRequest)
			return
		}
		end, err := utils.ParseRFC3339(req.End)
		if err != nil {
			http.Error(w, "invalid end", http.StatusBadRequest)
			return
		}
		series, err := sim.FetchSeries(r.Context(), req.Deployment, start, end)
		if errors.Is(err, source.ErrNoSamples) {
			writeJSON(w, map[string]any{"series": []any{}})
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"series": series})
	})

	logger := log.New(log.Writer(), "feed-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func parseDegraded(v string) map[string]int {
	out := make(map[string]int)
	for _, pair := range strings.Split(v, ",") {
		name, hours, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(hours); err == nil && n > 0 {
			out[name] = n
		}
	}
	return out
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
