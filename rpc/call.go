package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Exchanger performs one text exchange. *client.Client implements it.
type Exchanger interface {
	TryExchange(ctx context.Context, name, msg string) (string, error)
}

// Call invokes method ("Service.Method") on the endpoint and decodes the reply
// into reply, which must be a pointer. Errors returned by the remote method come
// back as *RemoteError.
func Call(ctx context.Context, ex Exchanger, endpoint, method string, args, reply any) error {
	if _, _, err := splitMethod(method); err != nil {
		return err
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("rpc: encode args: %w", err)
	}
	req, err := json.Marshal(Envelope{Method: method, Payload: payload})
	if err != nil {
		return fmt.Errorf("rpc: encode request: %w", err)
	}

	text, err := ex.TryExchange(ctx, endpoint, string(req))
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	if text == "" {
		return fmt.Errorf("rpc: %s: %w", method, ErrNoResponse)
	}

	var resp Envelope
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return fmt.Errorf("rpc: decode response: %w", err)
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Message: resp.Error}
	}
	if reply == nil || len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, reply); err != nil {
		return fmt.Errorf("rpc: decode reply: %w", err)
	}
	return nil
}
