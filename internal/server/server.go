package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/ipmdriver/internal/config"
	apperrors "github.com/copyleftdev/ipmdriver/internal/errors"
	"github.com/copyleftdev/ipmdriver/internal/ipm"
	"github.com/copyleftdev/ipmdriver/internal/ipm/dense"
	"github.com/copyleftdev/ipmdriver/internal/logging"
	"github.com/copyleftdev/ipmdriver/internal/metrics"
)

const component = "server"

// maxBodyBytes bounds a submitted problem.
const maxBodyBytes = 8 << 20

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records every solve in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// Server runs solve jobs behind a REST and a JSON-RPC 2.0 surface. At most
// cfg.Optimization.WorkerCount jobs iterate at once; the rest wait as
// pending.
type Server struct {
	cfg     *config.Config
	logger  Logger
	zap     *zap.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup

	jobs   map[string]*Job
	jobsMu sync.RWMutex // Protects jobs and every Job's fields
}

// NewServer creates a new server instance with the given config and logger
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	workers := cfg.Optimization.WorkerCount
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: logger,
		zap:    logging.NewZapLogger(logger.WithFields(map[string]interface{}{"component": "solver"})),
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, workers),
		jobs:   make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/solve/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Submit validates req and queues it. The returned status is the job's state
// at submission.
func (s *Server) Submit(req SolveRequest) (JobStatus, error) {
	const op = "Server.Submit"

	prob, err := req.Problem.Problem()
	if err != nil {
		return JobStatus{}, apperrors.Wrap(err, apperrors.KindInvalid, "invalid problem").
			WithOperation(op).WithComponent(component)
	}
	cfg := s.cfg.SolverConfig(prob.Dims())
	mu0, maxIter := s.cfg.Solver.Mu0, s.cfg.Solver.MaxIter
	req.Options.apply(&cfg, &mu0, &maxIter)
	if err := cfg.Validate(); err != nil {
		return JobStatus{}, apperrors.Wrap(err, apperrors.KindInvalid, "invalid options").
			WithOperation(op).WithComponent(component)
	}
	if maxIter < 1 || (cfg.NF > 0 && !(mu0 > 0)) {
		return JobStatus{}, apperrors.Errorf(apperrors.KindInvalid, "max_iter must be at least 1 and mu0 positive").
			WithOperation(op).WithComponent(component)
	}

	select {
	case <-s.ctx.Done():
		return JobStatus{}, apperrors.Errorf(apperrors.KindUnavailable, "server is shutting down").
			WithOperation(op).WithComponent(component)
	default:
	}

	ctx, cancel := context.WithCancel(s.ctx)
	job := &Job{
		ID:        uuid.NewString(),
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
		cancel:    cancel,
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	st := job.status()
	s.jobsMu.Unlock()

	s.logger.Info("solve submitted", map[string]interface{}{
		"job_id":   job.ID,
		"n_z":      cfg.NZ,
		"n_g":      cfg.NG,
		"n_f":      cfg.NF,
		"max_iter": maxIter,
	})

	s.wg.Add(1)
	go s.run(ctx, job, prob, cfg, mu0, maxIter)
	return st, nil
}

// Status returns a snapshot of the job.
func (s *Server) Status(id string) (JobStatus, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return JobStatus{}, apperrors.Errorf(apperrors.KindNotFound, "job %q not found", id).
			WithOperation("Server.Status").WithComponent(component)
	}
	return job.status(), nil
}

// Cancel stops a pending or running job.
func (s *Server) Cancel(id string) (JobStatus, error) {
	const op = "Server.Cancel"

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return JobStatus{}, apperrors.Errorf(apperrors.KindNotFound, "job %q not found", id).
			WithOperation(op).WithComponent(component)
	}
	if job.State.Terminal() {
		return JobStatus{}, apperrors.Errorf(apperrors.KindConflict, "cannot cancel job with state %s", job.State).
			WithOperation(op).WithComponent(component)
	}

	job.cancel()
	job.State = StateCancelled
	now := time.Now().UTC()
	job.FinishedAt = &now

	s.logger.Info("solve cancelled", map[string]interface{}{"job_id": id})
	return job.status(), nil
}

// run waits for a worker slot and solves the job.
func (s *Server) run(ctx context.Context, job *Job, prob *dense.Problem, cfg ipm.SolverConfig, mu0 float64, maxIter int) {
	defer s.wg.Done()
	defer job.cancel()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		s.finish(job, nil, nil, ctx.Err())
		return
	}
	defer func() { <-s.sem }()

	s.jobsMu.Lock()
	if job.State.Terminal() {
		s.jobsMu.Unlock()
		return
	}
	job.State = StateRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	s.jobsMu.Unlock()

	log := s.zap.With(zap.String("job_id", job.ID))
	kernel, err := dense.NewKernel(prob, dense.WithLogger(log))
	if err != nil {
		s.finish(job, nil, nil, err)
		return
	}

	observers := []ipm.Observer{ipm.NewZapObserver(log, cfg.VerboseLevel), progressObserver{s: s, job: job}}
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}
	var trace *ipm.Trace
	if cfg.DebugConvergence {
		trace = &ipm.Trace{}
	}
	driver, err := ipm.NewDriver(cfg, kernel,
		ipm.WithObserver(ipm.NewMultiObserver(observers...)),
		ipm.WithTrace(trace),
	)
	if err != nil {
		s.finish(job, nil, nil, err)
		return
	}

	res, err := driver.Solve(ctx, mu0, maxIter, 0)
	if err != nil && ctx.Err() != nil && s.metrics != nil {
		s.metrics.SolveAborted("cancelled")
	}
	s.finish(job, res, trace, err)
}

// finish records the outcome unless the job was already cancelled.
func (s *Server) finish(job *Job, res *ipm.Result, trace *ipm.Trace, err error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if job.State.Terminal() {
		return
	}
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Trace = trace

	if errors.Is(err, context.Canceled) {
		job.State = StateCancelled
		s.logger.Info("solve cancelled on shutdown", map[string]interface{}{"job_id": job.ID})
		return
	}
	if err != nil {
		job.State = StateFailed
		job.Err = err.Error()
		s.logger.Error("solve failed", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return
	}

	job.State = StateCompleted
	job.Result = res
	job.Iteration = res.Iterations
	s.logger.Info("solve completed", map[string]interface{}{
		"job_id":     job.ID,
		"status":     uint32(res.Status),
		"iterations": res.Iterations,
	})
}

// progressObserver mirrors the iteration counter into the job.
type progressObserver struct {
	ipm.NoOpObserver
	s   *Server
	job *Job
}

func (p progressObserver) IterationCompleted(rec ipm.IterationRecord) {
	p.s.jobsMu.Lock()
	p.job.Iteration = rec.Iteration
	p.s.jobsMu.Unlock()
}

// Close cancels every job and waits for the workers to return.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

type jobRef struct {
	ID string `json:"id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		s.respondWithError(w, apperrors.CodeParseError, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, apperrors.CodeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "solver.start":
		var req SolveRequest
		if err = decodeParam(request.Params, &req); err == nil {
			result, err = s.Submit(req)
		}
	case "solver.status":
		var ref jobRef
		if err = decodeParam(request.Params, &ref); err == nil {
			result, err = s.Status(ref.ID)
		}
	case "solver.cancel":
		var ref jobRef
		if err = decodeParam(request.Params, &ref); err == nil {
			result, err = s.Cancel(ref.ID)
		}
	default:
		s.respondWithError(w, apperrors.CodeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, apperrors.JSONRPCCode(err), err.Error(), request.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParam decodes the single positional parameter.
func decodeParam(params []json.RawMessage, v interface{}) error {
	if len(params) != 1 {
		return apperrors.Errorf(apperrors.KindInvalid, "expected exactly one parameter object, got %d", len(params))
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return apperrors.Wrap(err, apperrors.KindInvalid, "invalid parameter object")
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("rpc error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleSolve handles POST /api/v1/solve.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Wrap(err, apperrors.KindInvalid, "invalid request body"))
		return
	}

	st, err := s.Submit(req)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Status(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCancel handles DELETE /api/v1/solve/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	st, err := s.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
