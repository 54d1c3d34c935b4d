package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ProofMesh/internal/observability/metrics"
	"ProofMesh/internal/proofs"
	mysqlstore "ProofMesh/internal/storage/mysql"
	"ProofMesh/internal/task"
	"ProofMesh/internal/web3"
	"ProofMesh/pkg/logger"
)

// ProofIssuer 是签发与验证回执所需的能力，*proofs.Builder 即满足该接口。
type ProofIssuer interface {
	Generate(ctx context.Context, in proofs.ProvenanceInput) (*proofs.ProofReceipt, error)
	Verify(receipt *proofs.ProofReceipt, in proofs.ProvenanceInput) (proofs.VerificationResult, error)
	Signer() proofs.Signer
}

// JobService 是异步任务接口，*task.Service 即满足该接口。
type JobService interface {
	Submit(ctx context.Context, req task.SubmitRequest) (*task.Job, error)
	Get(ctx context.Context, id string) (*task.Job, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Job, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.JobStats, error)
}

// ChainInspector 提供链状态快照，用于健康检查。
type ChainInspector interface {
	Snapshots(ctx context.Context) []web3.ChainSnapshot
}

// Config 描述 HTTP 服务参数。
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	MetricsPath  string
}

// Server 负责暴露 REST 接口。
type Server struct {
	cfg      Config
	issuer   ProofIssuer
	receipts mysqlstore.ReceiptRepository
	jobs     JobService
	chains   ChainInspector
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithReceiptRepository 启用回执的保存、查询与血缘接口。
func WithReceiptRepository(repo mysqlstore.ReceiptRepository) Option {
	return func(s *Server) { s.receipts = repo }
}

// WithJobService 启用异步任务接口。
func WithJobService(jobs JobService) Option {
	return func(s *Server) { s.jobs = jobs }
}

// WithChainInspector 在健康检查中附带链状态。
func WithChainInspector(chains ChainInspector) Option {
	return func(s *Server) { s.chains = chains }
}

// WithMetrics 启用请求指标与 /metrics 端点。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger 指定访问日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer 构造 API 服务实例。
func NewServer(cfg Config, issuer ProofIssuer, opts ...Option) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{cfg: cfg, issuer: issuer}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limitBody)
		r.Post("/verify", s.handleVerifyReceipt)
		r.Route("/proofs", func(r chi.Router) {
			r.Post("/", s.handleCreateProof)
			r.Get("/", s.handleListProofs)
			r.Get("/{proofID}", s.handleGetProof)
			r.Get("/{proofID}/lineage", s.handleLineage)
			r.Post("/{proofID}/verify", s.handleVerifyStored)
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleSubmitJob)
			r.Get("/", s.handleListJobs)
			r.Get("/stats", s.handleJobStats)
			r.Get("/{jobID}", s.handleGetJob)
		})
	})
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("HTTP 服务已启动", slog.String("addr", s.cfg.Address))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// observe 记录访问日志和请求指标，handler 标签取路由模板。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveHTTPRequest(route, r.Method, status, elapsed)
		}
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("elapsed", elapsed),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
