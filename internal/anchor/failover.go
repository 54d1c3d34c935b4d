package anchor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
	"ProofMesh/pkg/logger"
)

// DefaultTimeout bounds a single provider attempt.
const DefaultTimeout = 30 * time.Second

// Named pairs a provider with the name used in logs and metrics.
type Named struct {
	Name     string
	Provider proofs.AnchorProvider
}

// AttemptFunc observes every provider attempt.
type AttemptFunc func(provider string, elapsed time.Duration, err error)

// FailoverProvider tries providers in order and returns the first record
// obtained. Each attempt runs under its own timeout.
type FailoverProvider struct {
	providers []Named
	timeout   time.Duration
	onAttempt AttemptFunc
	log       *slog.Logger
}

// FailoverOption configures a FailoverProvider.
type FailoverOption func(*FailoverProvider)

// WithTimeout sets the per-provider timeout.
func WithTimeout(d time.Duration) FailoverOption {
	return func(f *FailoverProvider) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithAttemptObserver registers fn for every attempt.
func WithAttemptObserver(fn AttemptFunc) FailoverOption {
	return func(f *FailoverProvider) { f.onAttempt = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FailoverOption {
	return func(f *FailoverProvider) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFailoverProvider validates providers and builds the wrapper.
func NewFailoverProvider(providers []Named, opts ...FailoverOption) (*FailoverProvider, error) {
	if len(providers) == 0 {
		return nil, errors.New("至少需要一个锚定提供方")
	}
	seen := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if p.Provider == nil {
			return nil, fmt.Errorf("锚定提供方 %q 为空", p.Name)
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, errors.New("锚定提供方名称不能为空")
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("重复的锚定提供方: %s", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	f := &FailoverProvider{
		providers: append([]Named(nil), providers...),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.Named("anchor")
	}
	return f, nil
}

// Submit implements proofs.AnchorProvider.
func (f *FailoverProvider) Submit(ctx context.Context, payloadHash string) (proofs.AnchorRecord, error) {
	var errs []error
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		start := time.Now()
		record, err := p.Provider.Submit(attemptCtx, payloadHash)
		elapsed := time.Since(start)
		cancel()

		if f.onAttempt != nil {
			f.onAttempt(p.Name, elapsed, err)
		}
		if err == nil {
			return record, nil
		}
		if xerrors.CodeOf(err) == xerrors.CodeInvalidArgument {
			return proofs.AnchorRecord{}, err
		}
		f.log.Warn("锚定提供方失败，尝试下一个",
			slog.String("provider", p.Name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return proofs.AnchorRecord{}, xerrors.Wrap(xerrors.CodeAnchorFailure, errors.Join(errs...), "所有锚定提供方均失败")
}

// Providers returns the provider names in try order.
func (f *FailoverProvider) Providers() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name
	}
	return names
}
