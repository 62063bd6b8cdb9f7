// Package application contém os casos de uso do rate limit e do limite de
// concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, key) devolve uma Decision (allow/deny + reset + retry-after).
package application
