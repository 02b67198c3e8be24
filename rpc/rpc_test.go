package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pipemsg/client"
	"pipemsg/server"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Div(args *Args, reply *Reply) error {
	if args.B == 0 {
		return errors.New("divide by zero")
	}
	reply.Result = args.A / args.B
	return nil
}

// Not exported over rpc: wrong signature.
func (a *Arith) Describe() string { return "arith" }

type Empty struct{}

func (Empty) Nothing() {}

func newArithServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(zap.NewNop())
	require.NoError(t, srv.Register(&Arith{}))
	return srv
}

func request(t *testing.T, method string, args any) string {
	t.Helper()
	payload, err := json.Marshal(args)
	require.NoError(t, err)
	b, err := json.Marshal(Envelope{Method: method, Payload: payload})
	require.NoError(t, err)
	return string(b)
}

func decode(t *testing.T, text string) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	return env
}

func TestRegister(t *testing.T) {
	srv := NewServer(zap.NewNop())
	require.NoError(t, srv.Register(&Arith{}))
	assert.Error(t, srv.Register(&Arith{}), "duplicate registration")

	assert.Error(t, srv.Register(Arith{}), "non-pointer receiver")
	assert.Error(t, srv.Register(nil))
	assert.Error(t, srv.Register(&Empty{}), "no rpc methods")

	svc := srv.serviceMap["Arith"]
	require.NotNil(t, svc)
	assert.Contains(t, svc.method, "Add")
	assert.Contains(t, svc.method, "Div")
	assert.NotContains(t, svc.method, "Describe")
}

func TestDispatch(t *testing.T) {
	srv := newArithServer(t)

	resp := decode(t, srv.Dispatch(request(t, "Arith.Add", Args{A: 1, B: 2}), true, nil))
	assert.Equal(t, "Arith.Add", resp.Method)
	assert.Empty(t, resp.Error)

	var reply Reply
	require.NoError(t, json.Unmarshal(resp.Payload, &reply))
	assert.Equal(t, 3, reply.Result)
}

func TestDispatchErrors(t *testing.T) {
	srv := newArithServer(t)

	tests := []struct {
		name    string
		message string
		success bool
		want    string
	}{
		{"method error", request(t, "Arith.Div", Args{A: 1}), true, "divide by zero"},
		{"unknown service", request(t, "Nope.Add", Args{}), true, "unknown service"},
		{"unknown method", request(t, "Arith.Mul", Args{}), true, "unknown method"},
		{"bad method name", request(t, "Add", Args{}), true, "Service.Method"},
		{"malformed json", "{not json", true, "malformed request"},
		{"bad args", `{"method":"Arith.Add","payload":"oops"}`, true, "decode args"},
		{"read failure", "truncated frame", false, "read request: truncated frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decode(t, srv.Dispatch(tt.message, tt.success, nil))
			assert.Contains(t, resp.Error, tt.want)
			assert.Empty(t, resp.Payload)
		})
	}
}

type fakeExchanger struct {
	got  string
	resp string
	err  error
}

func (f *fakeExchanger) TryExchange(_ context.Context, _ string, msg string) (string, error) {
	f.got = msg
	return f.resp, f.err
}

func TestCallErrors(t *testing.T) {
	var reply Reply

	err := Call(context.Background(), &fakeExchanger{}, "ep", "NoDot", Args{}, &reply)
	assert.ErrorIs(t, err, ErrInvalidMethod)

	boom := errors.New("boom")
	err = Call(context.Background(), &fakeExchanger{err: boom}, "ep", "Arith.Add", Args{}, &reply)
	assert.ErrorIs(t, err, boom)

	err = Call(context.Background(), &fakeExchanger{}, "ep", "Arith.Add", Args{}, &reply)
	assert.ErrorIs(t, err, ErrNoResponse)

	err = Call(context.Background(), &fakeExchanger{resp: `{"method":"Arith.Add","error":"nope"}`}, "ep", "Arith.Add", Args{}, &reply)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "nope", remote.Message)
}

func TestCallEncodesEnvelope(t *testing.T) {
	fx := &fakeExchanger{resp: `{"method":"Arith.Add","payload":{"Result":7}}`}
	var reply Reply
	require.NoError(t, Call(context.Background(), fx, "ep", "Arith.Add", Args{A: 3, B: 4}, &reply))
	assert.Equal(t, 7, reply.Result)

	env := decode(t, fx.got)
	assert.Equal(t, "Arith.Add", env.Method)
	assert.JSONEq(t, `{"A":3,"B":4}`, string(env.Payload))
}

func TestCallOverPipe(t *testing.T) {
	dir := t.TempDir()
	srv := newArithServer(t)

	l := server.NewListener("arith", srv.Dispatch, server.WithSocketDir(dir), server.WithLogger(zap.NewNop()))
	defer l.Shutdown(3 * time.Second)

	cli := client.NewClient(client.WithSocketDir(dir), client.WithLogger(zap.NewNop()))
	defer cli.Close()

	var reply Reply
	require.NoError(t, Call(context.Background(), cli, "arith", "Arith.Add", Args{A: 20, B: 22}, &reply))
	assert.Equal(t, 42, reply.Result)

	err := Call(context.Background(), cli, "arith", "Arith.Div", Args{A: 1, B: 0}, &reply)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "divide by zero", remote.Message)
}
