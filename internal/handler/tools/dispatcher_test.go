package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/service/broker"
	"OptionsFlow/internal/service/broker/brokertest"
	"OptionsFlow/internal/service/broker/flowrpc"
	"OptionsFlow/pkg/apperr"
	"OptionsFlow/pkg/util"
)

type fakeBroker struct {
	mu         sync.Mutex
	snapshot   *models.FlowSnapshot
	status     *models.MonitoringStatus
	health     models.HealthStatus
	err        error
	configured []models.MonitoringConfiguration
	calls      int
}

func (f *fakeBroker) Snapshot(context.Context, string) (*models.FlowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.snapshot == nil {
		return &models.FlowSnapshot{}, nil
	}
	return f.snapshot, nil
}

func (f *fakeBroker) Configure(_ context.Context, cfg models.MonitoringConfiguration) (*models.ConfigureReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.configured = append(f.configured, cfg)
	return &models.ConfigureReply{Status: "success", ContractsAdded: len(cfg.Keys())}, nil
}

func (f *fakeBroker) Status(_ context.Context, ticker string) (*models.MonitoringStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.status == nil {
		return &models.MonitoringStatus{Ticker: ticker}, nil
	}
	return f.status, nil
}

func (f *fakeBroker) Probe(context.Context) models.HealthStatus { return f.health }

func (f *fakeBroker) Target() string { return "broker.test:9090" }

func registry(t *testing.T, d *Dispatcher) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := d.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegistryListsFourTools(t *testing.T) {
	reg := registry(t, NewDispatcher(&fakeBroker{}))
	var names []string
	for _, tool := range reg.List() {
		names = append(names, tool.Name)
		if tool.Parameters["type"] != "object" {
			t.Fatalf("%s: schema must be an object", tool.Name)
		}
	}
	want := []string{AnalyzeOptionsFlow, ConfigureOptionsMonitoring, GetMonitoringStatus, DataBrokerHealthCheck}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected tools %v", names)
	}

	if _, err := reg.Execute(context.Background(), "nope", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := reg.Register(Tool{Name: AnalyzeOptionsFlow}, nil); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := reg.Register(Tool{}, nil); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestAnalyzeValidationNeverReachesBroker(t *testing.T) {
	fb := &fakeBroker{}
	d := NewDispatcher(fb)
	for _, ticker := range []string{"", "   ", "1ABC", "WAYTOOLONGTICKER", "SP<Y>"} {
		res := d.Analyze(context.Background(), ticker)
		if !res.IsError || !strings.Contains(res.Content, `kind="VALIDATION"`) {
			t.Fatalf("%q: expected validation error document, got\n%s", ticker, res.Content)
		}
	}
	if fb.calls != 0 {
		t.Fatalf("broker must not be called, got %d calls", fb.calls)
	}
}

func TestAnalyzeNormalizesTicker(t *testing.T) {
	d := NewDispatcher(&fakeBroker{})
	res := d.Analyze(context.Background(), "  spy ")
	if res.IsError {
		t.Fatalf("unexpected error\n%s", res.Content)
	}
	if !strings.Contains(res.Content, `<options_order_flow ticker="SPY">`) || !strings.Contains(res.Content, `<monitored_contracts count="0">`) {
		t.Fatalf("empty snapshot should render an empty hierarchy\n%s", res.Content)
	}
}

func TestUnavailableHintNamesBroker(t *testing.T) {
	for _, kind := range []apperr.Kind{apperr.Unavailable, apperr.Timeout} {
		d := NewDispatcher(&fakeBroker{err: apperr.New(kind, "down")})
		res := d.Analyze(context.Background(), "SPY")
		if !res.IsError || !strings.Contains(res.Content, `kind="`+string(kind)+`"`) {
			t.Fatalf("expected %s error\n%s", kind, res.Content)
		}
		if !strings.Contains(res.Content, "broker.test:9090") {
			t.Fatalf("hint should name the broker address\n%s", res.Content)
		}
	}

	d := NewDispatcher(&fakeBroker{err: apperr.New(apperr.Protocol, "garbled")})
	res := d.Status(context.Background(), "SPY")
	if !strings.Contains(res.Content, `kind="PROTOCOL"`) || strings.Contains(res.Content, "broker.test:9090") {
		t.Fatalf("protocol errors keep their own hint\n%s", res.Content)
	}
}

func TestConfigureDefaultsBothTypes(t *testing.T) {
	fb := &fakeBroker{}
	reg := registry(t, NewDispatcher(fb))
	args := json.RawMessage(`{"ticker":"spy","configurations":[{"expiration":20240419,"strike_range":[410,400,405,405]}]}`)

	res, err := reg.Execute(context.Background(), ConfigureOptionsMonitoring, args)
	if err != nil || res.IsError {
		t.Fatalf("configure failed: %v\n%s", err, res.Content)
	}
	if len(fb.configured) != 1 || !fb.configured[0].IncludeBothTypes || len(fb.configured[0].Strikes) != 3 {
		t.Fatalf("unexpected forwarded configuration %+v", fb.configured)
	}
	if n := strings.Count(res.Content, "<contract "); n != 6 {
		t.Fatalf("expected 6 contract keys, got %d\n%s", n, res.Content)
	}
}

func TestConfigurePartialFailure(t *testing.T) {
	fb := &fakeBroker{}
	d := NewDispatcher(fb, WithCalendar(util.NewTradingCalendar("xnys")))
	args := configureArgs{
		Ticker: "SPY",
		Configurations: []configurationArgs{
			{Expiration: 20240419, StrikeRange: []float64{400}},
			{Expiration: 20240231, StrikeRange: []float64{400}},
			{Expiration: 20240420, StrikeRange: []float64{400}},
			{Expiration: 20240419},
		},
	}
	res := d.configure(context.Background(), args)

	if res.IsError {
		t.Fatalf("partial success is not an error document\n%s", res.Content)
	}
	if len(fb.configured) != 2 {
		t.Fatalf("only valid configurations reach the broker, got %d", len(fb.configured))
	}
	for _, want := range []string{
		`status="partial" kind="PARTIAL"`,
		`accepted="2" rejected="2"`,
		`field="configurations[1].expiration"`,
		`field="configurations[3].strike_range"`,
		`<warning>expiration 20240420 is not an exchange trading day</warning>`,
	} {
		if !strings.Contains(res.Content, want) {
			t.Fatalf("missing %q\n%s", want, res.Content)
		}
	}
}

func TestConfigureWholeRequestErrors(t *testing.T) {
	fb := &fakeBroker{}
	reg := registry(t, NewDispatcher(fb))
	for _, raw := range []string{
		`{"ticker":"SPY","configurations":[]}`,
		`{"ticker":"","configurations":[{"expiration":20240419,"strike_range":[400]}]}`,
		`{"ticker":"SPY","configurations":"nope"}`,
	} {
		res, err := reg.Execute(context.Background(), ConfigureOptionsMonitoring, json.RawMessage(raw))
		if err != nil {
			t.Fatalf("%s: handler error %v", raw, err)
		}
		if !res.IsError || !strings.HasPrefix(res.Content, `<error operation="configure_options_monitoring" kind="VALIDATION"`) {
			t.Fatalf("%s: expected top-level validation error\n%s", raw, res.Content)
		}
	}
	if fb.calls != 0 {
		t.Fatalf("broker must not be called")
	}
}

func TestConfigureAllRejectedByBroker(t *testing.T) {
	d := NewDispatcher(&fakeBroker{err: apperr.New(apperr.Unavailable, "connection refused")})
	res := d.Configure(context.Background(), "SPY", []models.MonitoringConfiguration{
		{Expiration: 20240419, Strikes: strikes(400), IncludeBothTypes: false},
	})
	if !res.IsError || !strings.Contains(res.Content, `status="failed" kind="UNAVAILABLE"`) {
		t.Fatalf("expected failed document\n%s", res.Content)
	}
	if !strings.Contains(res.Content, "broker.test:9090") {
		t.Fatalf("rejections should carry the broker hint\n%s", res.Content)
	}
}

func TestStatusEmptyIsNotAnError(t *testing.T) {
	d := NewDispatcher(&fakeBroker{})
	res := d.Status(context.Background(), "qqq")
	if res.IsError || !strings.Contains(res.Content, `<monitoring_status ticker="QQQ" status="no_monitoring"`) {
		t.Fatalf("unexpected status document\n%s", res.Content)
	}
}

func TestHealthDocuments(t *testing.T) {
	d := NewDispatcher(&fakeBroker{health: models.HealthStatus{Target: "broker.test:9090", Reachable: true, Serving: "SERVING", Latency: 2 * time.Millisecond}})
	if res := d.Health(context.Background()); res.IsError || !strings.Contains(res.Content, `<data_broker_health status="healthy">`) {
		t.Fatalf("unexpected health document\n%s", res.Content)
	}

	d = NewDispatcher(&fakeBroker{health: models.HealthStatus{Target: "broker.test:9090", Reachable: true, Serving: "NOT_SERVING"}})
	if res := d.Health(context.Background()); !res.IsError || !strings.Contains(res.Content, "is not serving") {
		t.Fatalf("NOT_SERVING should render an error document\n%s", res.Content)
	}
}

func strikes(vs ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(vs))
	for _, v := range vs {
		out = append(out, decimal.NewFromInt(v))
	}
	return out
}

func newBrokerClient(t *testing.T, addr string) *broker.Client {
	t.Helper()
	c, err := broker.New(broker.Config{
		Target:            addr,
		Timeout:           2 * time.Second,
		HealthTimeout:     time.Second,
		ConnectTimeout:    time.Second,
		ReconnectAttempts: 1,
		ReconnectBackoff:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConfigureAgainstBroker(t *testing.T) {
	srv := &brokertest.Server{
		Configure: func(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
			n := len(req.GetFields()["strikes"].GetListValue().GetValues()) * len(req.GetFields()["option_types"].GetListValue().GetValues())
			return structpb.NewStruct(map[string]interface{}{"status": "success", "contracts_added": n, "total_contracts_monitored": n})
		},
	}
	d := NewDispatcher(newBrokerClient(t, srv.Start(t)))
	reg := registry(t, d)

	res, err := reg.Execute(context.Background(), ConfigureOptionsMonitoring, json.RawMessage(
		`{"ticker":"SPY","configurations":[{"expiration":20240419,"strike_range":[400,405,410],"include_both_types":true}]}`))
	if err != nil || res.IsError {
		t.Fatalf("configure failed: %v\n%s", err, res.Content)
	}
	if n := strings.Count(res.Content, "<contract "); n != 6 {
		t.Fatalf("expected 6 contract keys, got %d\n%s", n, res.Content)
	}
	for _, want := range []string{"SPY 20240419 400.00 CALL", "SPY 20240419 400.00 PUT", "SPY 20240419 410.00 PUT", `contracts_added="6"`} {
		if !strings.Contains(res.Content, want) {
			t.Fatalf("missing %q\n%s", want, res.Content)
		}
	}
	if srv.Calls(flowrpc.MethodConfigure) != 1 {
		t.Fatalf("expected one configure call")
	}
}

func TestHealthAgainstRefusedBroker(t *testing.T) {
	addr := brokertest.ClosedAddr(t)
	d := NewDispatcher(newBrokerClient(t, addr))
	res := d.Health(context.Background())
	if !res.IsError {
		t.Fatalf("refused broker must be an error document\n%s", res.Content)
	}
	for _, want := range []string{`<error operation="data_broker_health_check" kind="UNAVAILABLE">`, "<hint>", addr, `<detail name="reachable">false</detail>`} {
		if !strings.Contains(res.Content, want) {
			t.Fatalf("missing %q\n%s", want, res.Content)
		}
	}
}
