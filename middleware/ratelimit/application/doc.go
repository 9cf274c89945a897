// Package application contém os casos de uso (regras de aplicação) do controle
// de admissão: cotas da exchange, tiers de acesso e a decisão fail-open.
//
// Ele depende apenas dos pacotes domain e infra e não conhece net/http.
// Ex.: Service.Decide(...) executa uma checagem e nunca bloqueia a requisição
// por defeito interno do limiter.
package application
