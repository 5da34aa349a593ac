package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/domain/repository"
	"OptionsFlow/internal/render"
	"OptionsFlow/internal/usecase"
	"OptionsFlow/pkg/apperr"
	"OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/metrics"
	"OptionsFlow/pkg/validate"
)

// TradingDays reports whether an expiration falls on an exchange trading day.
type TradingDays interface {
	IsExpirationTradingDay(exp int) (bool, error)
}

// Dispatcher implements the four tools on top of a FlowBroker. Every call
// ends in a rendered document, failures included.
type Dispatcher struct {
	broker   repository.FlowBroker
	calendar TradingDays
	metrics  repository.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithCalendar enables non-trading-day warnings for expirations.
func WithCalendar(c TradingDays) Option {
	return func(d *Dispatcher) { d.calendar = c }
}

// NewDispatcher creates a dispatcher for broker.
func NewDispatcher(broker repository.FlowBroker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		broker:  broker,
		metrics: metrics.Noop{},
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds the four tools to reg.
func (d *Dispatcher) Register(reg *Registry) error {
	handlers := map[string]Handler{
		AnalyzeOptionsFlow:         d.handleAnalyze,
		ConfigureOptionsMonitoring: d.handleConfigure,
		GetMonitoringStatus:        d.handleStatus,
		DataBrokerHealthCheck:      d.handleHealth,
	}
	for _, tool := range definitions() {
		if err := reg.Register(tool, d.instrument(tool.Name, handlers[tool.Name])); err != nil {
			return err
		}
	}
	return nil
}

type requestIDKey struct{}

// RequestID returns the id assigned to the tool call running in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// instrument assigns a request id, logs and counts every call.
func (d *Dispatcher) instrument(name string, h Handler) Handler {
	return func(ctx context.Context, args json.RawMessage) (Result, error) {
		id := uuid.NewString()
		ctx = context.WithValue(ctx, requestIDKey{}, id)
		start := d.now()

		res, err := h(ctx, args)

		elapsed := time.Since(start)
		outcome := "ok"
		if err != nil || res.IsError {
			outcome = "error"
		}
		d.metrics.RecordToolCall(name, outcome)
		d.metrics.RecordLatency("tool."+name, elapsed.Seconds())
		d.log.Info("tool call",
			logger.String("request_id", id),
			logger.String("tool", name),
			logger.String("outcome", outcome),
			logger.Duration("elapsed", elapsed),
		)
		return res, err
	}
}

func (d *Dispatcher) handleAnalyze(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args tickerArgs
	if err := decodeArgs(raw, &args); err != nil {
		return d.fail(ctx, AnalyzeOptionsFlow, "", err), nil
	}
	return d.Analyze(ctx, args.Ticker), nil
}

func (d *Dispatcher) handleConfigure(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args configureArgs
	if err := decodeArgs(raw, &args); err != nil {
		return d.fail(ctx, ConfigureOptionsMonitoring, "", err), nil
	}
	return d.configure(ctx, args), nil
}

func (d *Dispatcher) handleStatus(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args tickerArgs
	if err := decodeArgs(raw, &args); err != nil {
		return d.fail(ctx, GetMonitoringStatus, "", err), nil
	}
	return d.Status(ctx, args.Ticker), nil
}

func (d *Dispatcher) handleHealth(ctx context.Context, _ json.RawMessage) (Result, error) {
	return d.Health(ctx), nil
}

func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.New(apperr.Validation, "arguments do not match the tool schema").WithError(err)
	}
	return nil
}

// Analyze renders the flow-analysis document for ticker.
func (d *Dispatcher) Analyze(ctx context.Context, ticker string) Result {
	t := validate.NormalizeTicker(ticker)
	if err := validate.Ticker(t); err != nil {
		return d.fail(ctx, AnalyzeOptionsFlow, ticker, err)
	}
	snap, err := d.broker.Snapshot(ctx, t)
	if err != nil {
		return d.fail(ctx, AnalyzeOptionsFlow, t, err)
	}
	view := usecase.Aggregate(t, snap)
	d.log.Debug("flow aggregated",
		logger.String("request_id", RequestID(ctx)),
		logger.String("ticker", t),
		logger.Int("contracts", view.ContractCount()),
		logger.Int("unmonitored", len(view.Unmonitored)),
	)
	return Result{Content: render.Flow(view)}
}

// Configure validates and forwards monitoring configurations for ticker.
func (d *Dispatcher) Configure(ctx context.Context, ticker string, configurations []models.MonitoringConfiguration) Result {
	args := configureArgs{Ticker: ticker}
	for _, c := range configurations {
		both := c.IncludeBothTypes
		strikes := make([]float64, 0, len(c.Strikes))
		for _, s := range c.Strikes {
			strikes = append(strikes, s.InexactFloat64())
		}
		args.Configurations = append(args.Configurations, configurationArgs{
			Expiration:       c.Expiration,
			StrikeRange:      strikes,
			IncludeBothTypes: &both,
		})
	}
	return d.configure(ctx, args)
}

// configure rejects the whole request only for a bad ticker or an empty
// list. Each configuration is then validated on its own; valid ones are
// sent to the broker one call each, invalid ones never leave the process.
func (d *Dispatcher) configure(ctx context.Context, args configureArgs) Result {
	t := validate.NormalizeTicker(args.Ticker)
	if err := validate.Ticker(t); err != nil {
		return d.fail(ctx, ConfigureOptionsMonitoring, args.Ticker, err)
	}
	if len(args.Configurations) == 0 {
		return d.fail(ctx, ConfigureOptionsMonitoring, t,
			apperr.ValidationError("configurations", "at least one configuration is required"))
	}

	outcomes := make([]models.ConfigurationOutcome, 0, len(args.Configurations))
	for i := range args.Configurations {
		outcomes = append(outcomes, d.configureOne(ctx, t, i, args.Configurations[i]))
	}

	status := render.ConfigurationStatus(outcomes)
	d.log.Info("monitoring configured",
		logger.String("request_id", RequestID(ctx)),
		logger.String("ticker", t),
		logger.String("status", status),
		logger.Int("configurations", len(outcomes)),
	)
	return Result{
		Content: render.Configuration(t, outcomes),
		IsError: status == render.ConfigFailed,
	}
}

func (d *Dispatcher) configureOne(ctx context.Context, ticker string, i int, c configurationArgs) models.ConfigurationOutcome {
	out := models.ConfigurationOutcome{
		Index:         i,
		Configuration: models.MonitoringConfiguration{Ticker: ticker, Expiration: c.Expiration},
	}
	if err := validate.Struct(ctx, &c, fmt.Sprintf("configurations[%d]", i)); err != nil {
		d.metrics.RecordError(string(apperr.Validation))
		out.Err = err
		for _, s := range c.StrikeRange {
			out.Configuration.Strikes = append(out.Configuration.Strikes, decimal.NewFromFloat(s))
		}
		return out
	}

	strikes := make([]decimal.Decimal, 0, len(c.StrikeRange))
	for _, s := range c.StrikeRange {
		strikes = append(strikes, decimal.NewFromFloat(s))
	}
	out.Configuration.Strikes = models.StrikeSet(strikes)
	out.Configuration.IncludeBothTypes = *c.IncludeBothTypes
	out.Keys = out.Configuration.Keys()

	if d.calendar != nil {
		if open, err := d.calendar.IsExpirationTradingDay(c.Expiration); err == nil && !open {
			out.Warnings = append(out.Warnings, fmt.Sprintf("expiration %d is not an exchange trading day", c.Expiration))
		}
	}

	reply, err := d.broker.Configure(ctx, out.Configuration)
	if err != nil {
		out.Err = d.withTargetHint(err)
		d.log.Warn("configuration rejected by broker",
			logger.String("request_id", RequestID(ctx)),
			logger.String("ticker", ticker),
			logger.Int("index", i),
			logger.Error(err),
		)
		return out
	}
	out.Reply = reply
	return out
}

// Status renders what the broker monitors for ticker.
func (d *Dispatcher) Status(ctx context.Context, ticker string) Result {
	t := validate.NormalizeTicker(ticker)
	if err := validate.Ticker(t); err != nil {
		return d.fail(ctx, GetMonitoringStatus, ticker, err)
	}
	st, err := d.broker.Status(ctx, t)
	if err != nil {
		return d.fail(ctx, GetMonitoringStatus, t, err)
	}
	if st.Ticker == "" {
		st.Ticker = t
	}
	return Result{Content: render.Status(*st)}
}

// Health probes the broker and renders the result. Any state other than a
// reachable, serving broker renders the error document.
func (d *Dispatcher) Health(ctx context.Context) Result {
	hs := d.broker.Probe(ctx)
	if hs.Healthy() {
		return Result{Content: render.Health(hs)}
	}

	msg := fmt.Sprintf("data broker at %s is unreachable", hs.Target)
	if hs.Reachable {
		msg = fmt.Sprintf("data broker at %s is not serving", hs.Target)
	}
	if hs.Detail != "" {
		msg += ": " + hs.Detail
	}
	env := render.Envelope{
		Operation: DataBrokerHealthCheck,
		Kind:      apperr.Unavailable,
		Message:   msg,
		Hint:      d.targetHint(),
		Details:   render.HealthDetails(hs),
	}
	d.metrics.RecordError(string(env.Kind))
	d.log.Warn("broker unhealthy",
		logger.String("request_id", RequestID(ctx)),
		logger.String("target", hs.Target),
		logger.Bool("reachable", hs.Reachable),
		logger.String("detail", hs.Detail),
	)
	return Result{Content: render.Error(env), IsError: true}
}

func (d *Dispatcher) fail(ctx context.Context, op, ticker string, err error) Result {
	err = d.withTargetHint(err)
	env := render.FromError(op, err)
	env.Ticker = ticker
	if env.Kind == apperr.Validation {
		d.metrics.RecordError(string(env.Kind))
	}
	d.log.Warn("tool failed",
		logger.String("request_id", RequestID(ctx)),
		logger.String("tool", op),
		logger.String("kind", string(env.Kind)),
		logger.Error(err),
	)
	return Result{Content: render.Error(env), IsError: true}
}

func (d *Dispatcher) targetHint() string {
	return fmt.Sprintf("Verify the options order flow data broker (analytics service) is running and reachable at %s", d.broker.Target())
}

// withTargetHint points UNAVAILABLE and TIMEOUT failures at the configured
// broker address. The original error is not modified.
func (d *Dispatcher) withTargetHint(err error) error {
	ae := apperr.As(err)
	if ae == nil || ae.Hint != "" {
		return err
	}
	switch ae.Kind {
	case apperr.Unavailable, apperr.Timeout:
		cp := *ae
		cp.Hint = d.targetHint()
		return &cp
	}
	return err
}
