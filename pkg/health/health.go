package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Checker is a function that checks the health of a dependency.
type Checker func(ctx context.Context) error

// Status represents the health status of a component.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

const defaultCheckTimeout = 5 * time.Second

// Response is the JSON response returned by the health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler provides HTTP health check endpoints. Readiness checks gate traffic;
// liveness checks report conditions that only a restart can fix, such as a
// stopped index worker.
type Handler struct {
	mu        sync.RWMutex
	readiness map[string]Checker
	liveness  map[string]Checker
	timeout   time.Duration
}

// NewHandler creates a new health check handler.
func NewHandler() *Handler {
	return &Handler{
		readiness: make(map[string]Checker),
		liveness:  make(map[string]Checker),
		timeout:   defaultCheckTimeout,
	}
}

// Register adds a named readiness checker.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness[name] = checker
}

// RegisterLiveness adds a named liveness checker.
func (h *Handler) RegisterLiveness(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness[name] = checker
}

// Names returns the registered readiness check names, sorted.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.readiness))
	for n := range h.readiness {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LivenessHandler returns 200 while the process and its liveness checks are up.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, h.snapshot(h.liveness))
	}
}

// ReadinessHandler checks all registered dependencies and returns 200/503.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, h.snapshot(h.readiness))
	}
}

func (h *Handler) snapshot(src map[string]Checker) map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]Checker, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Run executes checkers concurrently and returns the aggregate result.
func (h *Handler) Run(ctx context.Context, checkers map[string]Checker) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			res := CheckResult{Status: StatusUp}
			if err := checker(ctx); err != nil {
				res = CheckResult{Status: StatusDown, Error: err.Error()}
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	overall := StatusUp
	for _, c := range checks {
		if c.Status == StatusDown {
			overall = StatusDown
			break
		}
	}

	resp := Response{Status: overall, Timestamp: time.Now().UTC()}
	if len(checks) > 0 {
		resp.Checks = checks
	}
	return resp
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, checkers map[string]Checker) {
	resp := h.Run(r.Context(), checkers)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == StatusDown {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
