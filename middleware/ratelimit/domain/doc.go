// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// O contrato central é RateStore: um contador por chave com janela fixa,
// que pode ser em memória (um processo) ou compartilhado (Redis) sem que a
// regra de decisão mude.
package domain
