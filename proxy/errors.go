package proxy

import (
	"context"
	"errors"
	"net"
	"os"

	"edge-gateway/middleware/httperr"
)

// classifyUpstreamError traduz uma falha de ida ao backend.
// nil significa que o cliente desistiu (context.Canceled): não há a quem
// responder.
func classifyUpstreamError(err error) *httperr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	var ne net.Error
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return httperr.ErrUpstreamTimeout.WithCause(err)
	}
	return httperr.ErrUpstreamUnavailable.WithCause(err)
}
