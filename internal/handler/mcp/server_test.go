package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"OptionsFlow/internal/handler/tools"
	"OptionsFlow/internal/service/ratelimit"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	reg := tools.NewRegistry()
	echoTool := tools.Tool{Name: "echo", Description: "echo", Parameters: map[string]interface{}{"type": "object"}}
	err := reg.Register(echoTool, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var in struct {
			Text string `json:"text"`
			Slow bool   `json:"slow"`
		}
		_ = json.Unmarshal(args, &in)
		if in.Slow {
			time.Sleep(50 * time.Millisecond)
		}
		return tools.Result{Content: "<echo>" + in.Text + "</echo>", IsError: in.Text == "fail"}, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewServer(reg, nil, "optionsflow", "test")
}

type rawResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func roundTrip(t *testing.T, s *Server, msg string) rawResponse {
	t.Helper()
	out := s.Handle(context.Background(), []byte(msg))
	if out == nil {
		t.Fatalf("expected a response to %s", msg)
	}
	var resp rawResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("bad response %s: %v", out, err)
	}
	return resp
}

func TestInitializeAndList(t *testing.T) {
	s := testServer(t)
	resp := roundTrip(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	if resp.Error != nil || string(resp.ID) != "1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !strings.Contains(string(resp.Result), `"protocolVersion":"2024-11-05"`) {
		t.Fatalf("missing protocol version: %s", resp.Result)
	}

	resp = roundTrip(t, s, `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	if !strings.Contains(string(resp.Result), `"name":"echo"`) {
		t.Fatalf("tool not listed: %s", resp.Result)
	}

	if out := s.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)); out != nil {
		t.Fatalf("notifications get no reply, got %s", out)
	}
}

func TestProtocolErrors(t *testing.T) {
	s := testServer(t)
	cases := []struct {
		msg  string
		code int
	}{
		{`{not json`, CodeParseError},
		{`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`, CodeMethodNotFound},
		{`{"jsonrpc":"2.0","id":3,"method":"tools/call"}`, CodeInvalidParams},
		{`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"arguments":{}}}`, CodeInvalidParams},
		{`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"missing"}}`, CodeInvalidParams},
		{`{"jsonrpc":"1.0","id":6,"method":"ping"}`, CodeInvalidRequest},
	}
	for _, c := range cases {
		resp := roundTrip(t, s, c.msg)
		if resp.Error == nil || resp.Error.Code != c.code {
			t.Fatalf("%s: expected code %d, got %+v", c.msg, c.code, resp.Error)
		}
	}
}

func TestToolsCall(t *testing.T) {
	s := testServer(t)
	resp := roundTrip(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
	var res callResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("bad result: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" || res.Content[0].Text != "<echo>hi</echo>" || res.IsError {
		t.Fatalf("unexpected result %+v", res)
	}

	resp = roundTrip(t, s, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"echo","arguments":{"text":"fail"}}}`)
	_ = json.Unmarshal(resp.Result, &res)
	if !res.IsError {
		t.Fatalf("tool failures are reported in the result, not as rpc errors")
	}
}

func TestServeStdio(t *testing.T) {
	s := testServer(t)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"slow","slow":true}}}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n") + "\n"
	var out bytes.Buffer

	if err := s.ServeStdio(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var ids []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var resp rawResponse
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			t.Fatalf("each reply must be one JSON line: %q", sc.Text())
		}
		ids = append(ids, string(resp.ID))
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 replies, got %v", ids)
	}
	// the ping does not wait behind the slow call
	if ids[0] != "2" || ids[1] != "1" {
		t.Fatalf("expected completion order [2 1], got %v", ids)
	}
}

func TestHTTPTransport(t *testing.T) {
	e := echo.New()
	NewHTTPHandler(testServer(t), ratelimit.New(2, 0)).RegisterRoutes(e)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":1`) {
		t.Fatalf("unexpected reply %d %s", rec.Code, rec.Body.String())
	}
	if rec = post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("notification should be accepted, got %d", rec.Code)
	}
	if rec = post(`{"jsonrpc":"2.0","id":3,"method":"ping"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third call should be rate limited, got %d", rec.Code)
	}
}
