package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"OptionsFlow/internal/handler/tools"
	"OptionsFlow/pkg/logger"
)

const maxLineBytes = 4 << 20

// Server answers JSON-RPC requests against a tool registry.
type Server struct {
	registry *tools.Registry
	log      *logger.Logger
	name     string
	version  string
}

// NewServer creates a server for reg. name and version are reported on initialize.
func NewServer(reg *tools.Registry, log *logger.Logger, name, version string) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{registry: reg, log: log, name: name, version: version}
}

// Handle processes one raw message. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(errorResponse(json.RawMessage("null"), CodeParseError, "parse error: "+err.Error()))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return encode(errorResponse(req.ID, CodeInvalidRequest, "invalid request"))
	}

	result, rpcErr := s.dispatch(ctx, &req)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return encode(Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
	}
	return encode(Response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *RPCError) {
	switch req.Method {
	case MethodInitialize:
		return initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]interface{}{"tools": map[string]interface{}{}},
			ServerInfo:      serverInfo{Name: s.name, Version: s.version},
		}, nil
	case MethodInitialized, MethodPing:
		return map[string]interface{}{}, nil
	case MethodToolsList:
		return map[string]interface{}{"tools": s.registry.List()}, nil
	case MethodToolsCall:
		return s.call(ctx, req.Params)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (s *Server) call(ctx context.Context, raw json.RawMessage) (interface{}, *RPCError) {
	var p callParams
	if len(raw) == 0 {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	if p.Name == "" {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "tool name is required"}
	}

	res, err := s.registry.Execute(ctx, p.Name, p.Arguments)
	if err != nil {
		if errors.Is(err, tools.ErrNotFound) {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		s.log.Error("tool execution failed", logger.String("tool", p.Name), logger.Error(err))
		return nil, &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
	return callResult{
		Content: []content{{Type: "text", Text: res.Content}},
		IsError: res.IsError,
	}, nil
}

func errorResponse(id json.RawMessage, code int, msg string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: msg}}
}

func encode(r Response) []byte {
	if len(r.ID) == 0 {
		r.ID = json.RawMessage("null")
	}
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(errorResponse(r.ID, CodeInternalError, "cannot encode response"))
	}
	return b
}

// ServeStdio reads newline-delimited requests from r until EOF or ctx is
// done. Each request runs on its own goroutine; replies are written to w one
// line at a time in completion order.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	write := func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		if _, err := w.Write(append(b, '\n')); err != nil {
			s.log.Error("stdio write failed", logger.Error(err))
		}
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			msg := append([]byte(nil), line...)
			select {
			case lines <- msg:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	s.log.Info("stdio transport ready")
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case msg, ok := <-lines:
			if !ok {
				wg.Wait()
				var err error
				select {
				case err = <-scanErr:
				default:
				}
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if out := s.Handle(ctx, msg); out != nil {
					write(out)
				}
			}()
		}
	}
}
