// Package upload valida o upload de imagem do POST /api/scan.
//
// Ordem das checagens:
//
//  1. Content-Length acima do limite (mais a folga do multipart) vira 413
//     sem ler o corpo.
//  2. O Content-Type declarado na parte precisa estar na allowlist, antes
//     de bufferizar qualquer byte (415 UNSUPPORTED_MEDIA_TYPE).
//  3. A parte é lida com no máximo MaxBytes+1 bytes em memória (413).
//  4. Os magic bytes são detectados com mimetype; o tipo detectado precisa
//     estar na allowlist e ser igual ao declarado (415 SIGNATURE_MISMATCH).
//
// O Asset validado vai no contexto do request; os bytes nunca vão para log,
// só o Fingerprint.
package upload
