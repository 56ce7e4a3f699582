package rodpage

import (
	"context"
	"encoding/json"
	"fmt"

	"waenhancer/internal/intercept"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

type reportedFrame struct {
	Seq    int64  `json:"seq"`
	Text   string `json:"text"`
	Binary bool   `json:"binary"`
}

func decodeFrame(payload string) (intercept.Frame, error) {
	var f reportedFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return intercept.Frame{}, err
	}
	return intercept.Frame{Seq: f.Seq, Text: f.Text, Binary: f.Binary}, nil
}

// installSocketBridge routes every outbound websocket frame through the socket
// decorators. Bindings are delivered in call order and handled one at a time, so
// released frames keep their original order.
func (p *Page) installSocketBridge() error {
	if err := (proto.RuntimeEnable{}).Call(p.page); err != nil {
		return fmt.Errorf("enable runtime: %w", err)
	}
	if err := (proto.RuntimeAddBinding{Name: socketBinding}).Call(p.page); err != nil {
		return fmt.Errorf("add socket binding: %w", err)
	}
	if _, err := p.page.EvalOnNewDocument(socketShim); err != nil {
		return fmt.Errorf("install socket shim: %w", err)
	}

	var release intercept.SocketSender = intercept.SenderFunc(func(ctx context.Context, f intercept.Frame) error {
		_, err := p.page.Context(ctx).Evaluate(rod.Eval(releaseFrame, f.Seq))
		return err
	})
	sender := release
	if p.opts.WrapSockets != nil {
		sender = p.opts.WrapSockets(release)
	}

	wait := p.page.Context(p.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != socketBinding {
			return
		}
		frame, err := decodeFrame(e.Payload)
		if err != nil {
			p.logger.WithError(err).Warn("Malformed socket frame report")
			return
		}
		if err := sender.Send(p.ctx, frame); err != nil {
			p.logger.WithError(err).WithField("seq", frame.Seq).Warn("Failed to release socket frame")
		}
		// no-op when the frame was released
		_, _ = p.page.Context(p.ctx).Evaluate(rod.Eval(discardFrame, frame.Seq))
	})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		wait()
	}()
	return nil
}

// installRequestHijack pauses every HTTP request of the page and routes it through
// the request decorators. A request nobody continues stays paused until the page
// closes.
func (p *Page) installRequestHijack() error {
	router := p.page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		continued := false
		var issuer intercept.RequestIssuer = intercept.IssuerFunc(func(context.Context, intercept.RequestDescriptor) error {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			continued = true
			return nil
		})
		if p.opts.WrapRequests != nil {
			issuer = p.opts.WrapRequests(issuer)
		}

		req := intercept.RequestDescriptor{Method: h.Request.Method(), URL: h.Request.URL().String()}
		if err := issuer.Issue(p.ctx, req); err != nil {
			p.logger.WithError(err).Warn("Request filter failed, letting request through")
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		if !continued {
			<-p.ctx.Done()
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		}
	})
	if err != nil {
		return fmt.Errorf("add hijack route: %w", err)
	}
	p.router = router
	go router.Run()
	return nil
}
