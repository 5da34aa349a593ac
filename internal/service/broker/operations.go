package broker

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/internal/service/broker/flowrpc"
	"OptionsFlow/pkg/apperr"
	"OptionsFlow/pkg/logger"
)

// Snapshot fetches the current order flow of every monitored contract of ticker.
func (c *Client) Snapshot(ctx context.Context, ticker string) (*models.FlowSnapshot, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"ticker":               ticker,
		"expiration":           0,
		"strikes":              []interface{}{},
		"option_types":         []interface{}{"C", "P"},
		"history_seconds":      c.cfg.HistorySeconds,
		"include_patterns":     true,
		"include_aggregations": true,
	})
	if err != nil {
		return nil, apperr.New(apperr.Protocol, "cannot encode snapshot request").WithOp(OpSnapshot.Name).WithError(err)
	}

	reply, err := c.Call(ctx, OpSnapshot, req)
	if err != nil {
		return nil, err
	}
	snap, err := decodeSnapshot(reply)
	if err != nil {
		return nil, withOp(err, OpSnapshot.Name)
	}
	if snap.Status == "error" {
		return nil, remoteFailure(OpSnapshot.Name, snap.Message)
	}
	return snap, nil
}

// Configure asks the broker to add monitoring for one configuration.
// It is never retried: a lost reply may still have been applied.
func (c *Client) Configure(ctx context.Context, cfg models.MonitoringConfiguration) (*models.ConfigureReply, error) {
	strikes := make([]interface{}, 0, len(cfg.Strikes))
	for _, s := range cfg.Strikes {
		strikes = append(strikes, s.InexactFloat64())
	}
	types := make([]interface{}, 0, 2)
	for _, side := range cfg.Sides() {
		types = append(types, side.Code())
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"ticker":       cfg.Ticker,
		"expiration":   cfg.Expiration,
		"strikes":      strikes,
		"option_types": types,
		"action":       flowrpc.ActionAdd,
	})
	if err != nil {
		return nil, apperr.New(apperr.Protocol, "cannot encode configure request").WithOp(OpConfigure.Name).WithError(err)
	}

	reply, err := c.Call(ctx, OpConfigure, req)
	if err != nil {
		return nil, err
	}
	out, err := decodeConfigureReply(reply)
	if err != nil {
		return nil, withOp(err, OpConfigure.Name)
	}
	if out.Status == "error" || out.Status == "failed" {
		return nil, remoteFailure(OpConfigure.Name, out.Message)
	}
	return out, nil
}

// Status lists what the broker currently monitors for ticker.
func (c *Client) Status(ctx context.Context, ticker string) (*models.MonitoringStatus, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"ticker": ticker})
	if err != nil {
		return nil, apperr.New(apperr.Protocol, "cannot encode status request").WithOp(OpStatus.Name).WithError(err)
	}
	reply, err := c.Call(ctx, OpStatus, req)
	if err != nil {
		return nil, err
	}
	st, err := decodeStatus(reply, ticker)
	if err != nil {
		return nil, withOp(err, OpStatus.Name)
	}
	if st.Status == "error" {
		return nil, remoteFailure(OpStatus.Name, st.Message)
	}
	return st, nil
}

// Probe checks reachability through the standard gRPC health service using
// the short health timeout. A broker that answers Unimplemented or NotFound
// is reachable, it just does not publish health.
func (c *Client) Probe(ctx context.Context) models.HealthStatus {
	hs := models.HealthStatus{Target: c.cfg.Target, CheckedAt: time.Now().UTC()}

	var latency time.Duration
	err := c.do(ctx, OpHealth, []CallOption{WithTimeout(c.cfg.HealthTimeout)}, func(ctx context.Context, conn *grpc.ClientConn) error {
		start := time.Now()
		resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: flowrpc.ServiceName})
		latency = time.Since(start)
		if err != nil {
			switch status.Code(err) {
			case codes.Unimplemented, codes.NotFound:
				hs.Serving = "UNKNOWN"
				return nil
			}
			return err
		}
		hs.Serving = resp.GetStatus().String()
		return nil
	})
	hs.Latency = latency

	if err != nil {
		hs.Detail = err.Error()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			hs.Detail = ae.Message
		}
		return hs
	}

	hs.Reachable = true
	if hs.Serving == grpc_health_v1.HealthCheckResponse_NOT_SERVING.String() {
		hs.Detail = "data broker reports NOT_SERVING"
	}
	c.log.Debug("broker probe", logger.String("serving", hs.Serving), logger.Duration("latency_ms", latency))
	return hs
}

func withOp(err error, op string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Op == "" {
		ae.Op = op
	}
	return err
}

func remoteFailure(op, message string) error {
	if message == "" {
		message = "data broker reported an error without details"
	}
	return apperr.New(apperr.Remote, message).WithOp(op)
}
