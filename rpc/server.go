package rpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"pipemsg/logging"
)

// Server routes envelopes to registered receivers. Its Dispatch method can be handed
// to server.NewListener directly.
type Server struct {
	mu         sync.RWMutex
	serviceMap map[string]*service
	logger     *zap.Logger
}

// NewServer returns an empty Server. A nil logger uses the global one.
func NewServer(logger *zap.Logger) *Server {
	return &Server{
		serviceMap: make(map[string]*service),
		logger:     logging.Named(logger, "rpc"),
	}
}

// Register exposes every exported method of rcvr with the signature
// Method(*Args, *Reply) error under the name "<Type>.<Method>".
func (s *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.serviceMap[svc.name]; dup {
		return fmt.Errorf("rpc: service %s already registered", svc.name)
	}
	s.serviceMap[svc.name] = svc
	return nil
}

// Dispatch decodes message as a request envelope, invokes the method and returns the
// encoded response envelope. A failed read is answered with an error envelope.
func (s *Server) Dispatch(message string, success bool, err error) string {
	if !success {
		return encodeEnvelope(Envelope{Error: "read request: " + message})
	}

	var req Envelope
	if err := json.Unmarshal([]byte(message), &req); err != nil {
		s.logger.Debug("malformed request", zap.Error(err))
		return encodeEnvelope(Envelope{Error: "malformed request: " + err.Error()})
	}
	return encodeEnvelope(s.invoke(req))
}

func (s *Server) invoke(req Envelope) Envelope {
	resp := Envelope{Method: req.Method}

	svcName, methodName, err := splitMethod(req.Method)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	s.mu.RLock()
	svc := s.serviceMap[svcName]
	s.mu.RUnlock()
	if svc == nil {
		resp.Error = fmt.Sprintf("%v %q", ErrUnknownService, svcName)
		return resp
	}
	m := svc.method[methodName]
	if m == nil {
		resp.Error = fmt.Sprintf("%v %q", ErrUnknownMethod, req.Method)
		return resp
	}

	argv := reflect.New(m.ArgType)
	replyv := reflect.New(m.ReplyType)
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, argv.Interface()); err != nil {
			resp.Error = "decode args: " + err.Error()
			return resp
		}
	}

	if err := svc.call(m, argv, replyv); err != nil {
		resp.Error = err.Error()
		return resp
	}

	payload, err := json.Marshal(replyv.Interface())
	if err != nil {
		s.logger.Warn("encode reply failed", zap.String("method", req.Method), zap.Error(err))
		resp.Error = "encode reply: " + err.Error()
		return resp
	}
	resp.Payload = payload
	return resp
}
