// Package domain define contratos e tipos de domínio para o controle de admissão
// (rate limit) do gateway.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// (janelas deslizantes, cotas da exchange, tiers de acesso) de detalhes de
// infraestrutura.
package domain
