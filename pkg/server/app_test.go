package server

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"OptionsFlow/internal/handler/mcp"
	"OptionsFlow/internal/handler/tools"
	"OptionsFlow/pkg/config"
	applogger "OptionsFlow/pkg/logger"
)

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestRunEndsOnStdinEOF(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	broker := &closeRecorder{}
	app := New(cfg, applogger.Nop(), mcp.NewServer(tools.NewRegistry(), nil, Name, Version), nil, broker, nil)

	var out bytes.Buffer
	app.SetStdio(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after stdin closed")
	}
	if !strings.Contains(out.String(), `"id":1`) {
		t.Fatalf("missing ping reply: %q", out.String())
	}
	if !broker.closed {
		t.Fatalf("broker client should be closed on shutdown")
	}
}
