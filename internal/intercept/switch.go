package intercept

import (
	"context"
	"sync/atomic"
)

// Switch turns interception on and off at runtime. While off, traffic goes straight
// to the direct transport.
type Switch struct {
	on atomic.Bool
}

func (s *Switch) Set(on bool) {
	s.on.Store(on)
}

func (s *Switch) On() bool {
	return s.on.Load()
}

// Sockets returns a sender that uses filtered while s is on and direct otherwise.
func (s *Switch) Sockets(filtered, direct SocketSender) SocketSender {
	return SenderFunc(func(ctx context.Context, f Frame) error {
		if s.On() {
			return filtered.Send(ctx, f)
		}
		return direct.Send(ctx, f)
	})
}

// Requests returns an issuer that uses filtered while s is on and direct otherwise.
func (s *Switch) Requests(filtered, direct RequestIssuer) RequestIssuer {
	return IssuerFunc(func(ctx context.Context, req RequestDescriptor) error {
		if s.On() {
			return filtered.Issue(ctx, req)
		}
		return direct.Issue(ctx, req)
	})
}
