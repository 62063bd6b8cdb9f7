// Package proxy encaminha o tráfego validado para o backend.
//
// Dois caminhos:
//
//   - ScanHandler monta um multipart novo com os bytes já validados do
//     upload e repassa status, Content-Type e corpo do backend sem
//     reinterpretar nada. Só falha de conexão ou timeout viram 502.
//   - NewReverseProxy reescreve /api/* para /v1/*, injeta X-Device-Id e
//     reenvia o corpo JSON já parseado com Content-Length recalculado.
package proxy
