// Package security é o filtro de conteúdo na frente de toda a cadeia.
//
// Duas camadas independentes:
//
//   - Classifier: olha só o User-Agent. Allowlist (navegadores) ganha de
//     tudo; depois blocklist (automação, scanners) e UA vazio/placeholder
//     viram 403 BLOCKED_USER_AGENT.
//   - Tracker: contador por endereço com janela que decai. Acima do limite
//     o request recebe 429 SUSPICIOUS_ACTIVITY, não importa o UA.
//
// Registros parados do Tracker saem por um Sweep periódico (infra.Janitor),
// fora do caminho do request.
package security
