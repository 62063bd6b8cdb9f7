package proxy

import (
	"net"
	"net/http"
	"time"
)

// NewTransport cria o transport compartilhado pelos dois caminhos.
// timeout limita conexão, TLS e a espera pelos headers de resposta; o corpo
// da resposta pode continuar em streaming depois disso.
func NewTransport(timeout time.Duration) *http.Transport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialTimeout := min(timeout, 5*time.Second)

	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
}
