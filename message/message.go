// Package message defines the request handed to dispatch logic on the server side.
//
// A Request is built once per accepted connection, after the single request frame
// has been read (or has failed to read), and passes through the middleware chain
// to the caller's dispatcher. The dispatcher's return value is the response text.
package message

import "time"

// Request carries the outcome of reading one frame.
//
//   - On success: Text is the decoded message, Success is true, Err is nil.
//   - On failure: Text is Err's message, Success is false, Err says why the read failed.
type Request struct {
	Text     string
	Success  bool
	Err      error
	Endpoint string    // endpoint name the listener serves
	ConnID   string    // per-connection id, also attached to log lines
	Received time.Time // when the frame finished reading
}

// NewRequest builds a Request from the result of a frame read.
func NewRequest(text string, err error) *Request {
	req := &Request{
		Text:     text,
		Success:  err == nil,
		Err:      err,
		Received: time.Now(),
	}
	if err != nil {
		req.Text = err.Error()
	}
	return req
}
