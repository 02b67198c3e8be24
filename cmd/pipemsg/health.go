package main

import (
	"time"
)

// Health is the service exposed by "serve --mode rpc".
type Health struct {
	endpoint string
	started  time.Time
}

type PingArgs struct {
	Message string `json:"message"`
}

type PingReply struct {
	Message  string `json:"message"`
	Endpoint string `json:"endpoint"`
	Uptime   string `json:"uptime"`
}

func (h *Health) Ping(args *PingArgs, reply *PingReply) error {
	reply.Message = args.Message
	reply.Endpoint = h.endpoint
	reply.Uptime = time.Since(h.started).Round(time.Millisecond).String()
	return nil
}
