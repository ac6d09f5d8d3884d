// Package orchestrator runs the provider selection, retry and fallback
// algorithm that turns an ExtractionRequest into a canonical MetricSet.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/healthmetrics-cli/internal/config"
	"github.com/sells-group/healthmetrics-cli/internal/cost"
	"github.com/sells-group/healthmetrics-cli/internal/model"
	"github.com/sells-group/healthmetrics-cli/internal/provider"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

// Resolver supplies provider priority and per-provider settings.
type Resolver interface {
	PriorityOrder() []string
	Resolve(name string) (model.ProviderConfig, error)
}

// Registry looks up provider implementations by name.
type Registry interface {
	Get(name string) (provider.Provider, bool)
}

// Mapper converts provider output into the canonical schema.
type Mapper interface {
	Map(provider string, raw *model.RawExtractionResult) (*model.MetricSet, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBackoff sets the delay schedule between attempts against one provider.
// MaxAttempts is ignored; each provider's retry budget decides.
func WithBackoff(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) {
		o.backoff = cfg
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithCalculator sets the cost calculator used for the winning call.
func WithCalculator(calc *cost.Calculator) Option {
	return func(o *Orchestrator) {
		if calc != nil {
			o.calc = calc
		}
	}
}

// Orchestrator is the single entry point for metric extraction. It is safe
// for concurrent use; requests share only read-only collaborators and the
// per-provider rate limiters.
type Orchestrator struct {
	resolver Resolver
	registry Registry
	mapper   Mapper
	backoff  resilience.RetryConfig
	observer Observer
	calc     *cost.Calculator

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates an Orchestrator.
func New(resolver Resolver, registry Registry, mapper Mapper, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		registry: registry,
		mapper:   mapper,
		backoff:  resilience.DefaultRetryConfig(),
		observer: nopObserver{},
		calc:     cost.NewCalculator(cost.DefaultRates()),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// request carries the per-call state of one ExtractMetrics invocation.
type request struct {
	o        *Orchestrator
	req      model.ExtractionRequest
	log      *zap.Logger
	state    State
	provider string
	start    time.Time
}

func (r *request) transition(s State) {
	r.log.Debug("orchestrator: state",
		zap.String("from", r.state.String()),
		zap.String("to", s.String()),
		zap.String("provider", r.provider),
	)
	r.state = s
	r.o.observer.StateChanged(r.req.ID, r.provider, s)
}

func (r *request) fail(err error) error {
	r.transition(StateFailed)
	r.o.observer.RequestFinished("", StateFailed, time.Since(r.start), 0)
	return err
}

// ExtractMetrics tries providers in priority order and returns the MetricSet
// of the first one that succeeds. Each provider gets up to 1+max_retries
// attempts; retryable failures back off and retry, permanent failures and
// exhausted budgets fall back to the next provider.
//
// The returned error is a *config.ConfigurationError for operator defects
// (which never trigger fallback), an *ExhaustedError when every provider
// failed, or the context error when ctx ends first.
func (o *Orchestrator) ExtractMetrics(ctx context.Context, req model.ExtractionRequest) (*model.MetricSet, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	r := &request{
		o:     o,
		req:   req,
		log:   zap.L().With(zap.String("request_id", req.ID)),
		state: StatePending,
		start: time.Now(),
	}
	o.observer.StateChanged(req.ID, "", StatePending)

	order := o.resolver.PriorityOrder()
	if len(order) == 0 {
		return nil, r.fail(config.MissingConfig("extraction.providers", "no providers configured"))
	}

	var failures []ProviderFailure
	for _, name := range order {
		r.provider = name
		r.transition(StateSelectingProvider)

		cfg, err := o.resolver.Resolve(name)
		if err != nil {
			return nil, r.fail(err)
		}
		p, ok := o.registry.Get(name)
		if !ok {
			return nil, r.fail(config.InvalidConfig("providers."+name, "no provider implementation registered"))
		}

		raw, failure, err := r.invoke(ctx, p, cfg)
		if err != nil {
			return nil, r.fail(err)
		}
		if failure != nil {
			failures = append(failures, *failure)
			r.transition(StateExhausted)
			r.log.Warn("orchestrator: provider failed, falling back",
				zap.String("provider", name),
				zap.Bool("retryable", failure.Retryable),
				zap.Int("attempts", failure.Attempts),
				zap.String("error", failure.Context),
			)
			continue
		}

		return r.complete(cfg, raw)
	}

	r.provider = ""
	return nil, r.fail(&ExhaustedError{RequestID: req.ID, Failures: failures})
}

// invoke runs the retry loop against one provider. It returns the raw result
// on success, a failure record when the provider should be abandoned, or an
// error when the whole request must stop (caller cancellation).
func (r *request) invoke(ctx context.Context, p provider.Provider, cfg model.ProviderConfig) (*model.RawExtractionResult, *ProviderFailure, error) {
	name := cfg.Name
	if name == "" {
		name = r.provider
	}

	retry := r.o.backoff
	retry.MaxAttempts = max(cfg.Attempts(), 1)
	retry.ShouldRetry = func(err error) bool {
		var rw *rateWaitError
		if errors.As(err, &rw) {
			return false
		}
		return resilience.IsRetryable(err)
	}
	retry.OnRetry = func(attempt int, err error) {
		r.transition(StateRetry)
		resilience.RetryLogger(name, "extract")(attempt, err)
	}

	attempts := 0
	raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*model.RawExtractionResult, error) {
		attempts++
		r.transition(StateInvoking)

		if err := r.o.wait(ctx, cfg); err != nil {
			return nil, err
		}

		callCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		start := time.Now()
		raw, err := p.Extract(callCtx, r.req, cfg)
		switch {
		case err != nil:
			err = classify(ctx, callCtx, name, err)
		case raw == nil:
			err = resilience.NewRetryable(name, "provider returned no result", 0, nil)
		}
		r.o.observer.AttemptFinished(name, attempts, time.Since(start), err)
		return raw, err
	})

	if err == nil {
		return raw, nil, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, eris.Wrapf(ctxErr, "orchestrator: extraction cancelled during %s", name)
	}
	var rateErr *rateWaitError
	if errors.As(err, &rateErr) {
		return nil, nil, rateErr.err
	}

	pe := resilience.FromError(name, err)
	return nil, &ProviderFailure{
		Provider:  name,
		Retryable: pe.Retryable(),
		Context:   pe.Message,
		Attempts:  attempts,
		Err:       pe,
	}, nil
}

// complete maps a successful result and finishes the request.
func (r *request) complete(cfg model.ProviderConfig, raw *model.RawExtractionResult) (*model.MetricSet, error) {
	r.transition(StateMapping)

	set, err := r.o.mapper.Map(r.provider, raw)
	if err != nil {
		return nil, r.fail(err)
	}
	set.RequestID = r.req.ID

	usd := r.o.calc.Estimate(cfg, raw.Usage)
	elapsed := time.Since(r.start)
	r.log.Info("orchestrator: extraction complete",
		zap.String("provider", r.provider),
		zap.String("model", raw.Model),
		zap.Int("metrics", set.Len()),
		zap.Int64("input_tokens", raw.Usage.InputTokens),
		zap.Int64("output_tokens", raw.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", usd),
		zap.Duration("elapsed", elapsed),
	)

	r.transition(StateDone)
	r.o.observer.RequestFinished(r.provider, StateDone, elapsed, usd)
	return set, nil
}

// classify turns an Extract failure into a ProviderError. A per-call deadline
// that fires while the caller is still waiting is a retryable timeout. When
// the caller's context has ended, its error replaces whatever the provider
// reported.
func classify(parent, call context.Context, name string, err error) error {
	if ctxErr := parent.Err(); ctxErr != nil {
		return eris.Wrapf(ctxErr, "orchestrator: %s call cancelled", name)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		var pe *resilience.ProviderError
		if errors.As(err, &pe) && pe.Retryable() {
			return pe
		}
		return resilience.NewRetryable(name, "request timed out", 0, err)
	}
	return resilience.FromError(name, err)
}

// rateWaitError marks a limiter wait that cannot complete before the caller's
// deadline. It is not a provider failure.
type rateWaitError struct{ err error }

func (e *rateWaitError) Error() string { return e.err.Error() }
func (e *rateWaitError) Unwrap() error { return e.err }

// wait blocks on the provider's rate limiter, if it has one.
func (o *Orchestrator) wait(ctx context.Context, cfg model.ProviderConfig) error {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if err := o.limiter(cfg).Wait(ctx); err != nil {
		return &rateWaitError{err: eris.Wrapf(err, "orchestrator: rate limit wait for %s", cfg.Name)}
	}
	return nil
}

func (o *Orchestrator) limiter(cfg model.ProviderConfig) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[cfg.Name]
	if !ok {
		burst := max(int(cfg.RequestsPerSecond), 1)
		l = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
		o.limiters[cfg.Name] = l
	}
	return l
}
