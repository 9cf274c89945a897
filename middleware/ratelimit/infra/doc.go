// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: log de requisições por chave, com lock por shard
//   - WindowLimiter: janela deslizante por contagem ou por peso
//   - AdaptiveLimiter: janela cujo limite encolhe com a carga do sistema
//   - StreamSlots: slots de stream por conexão WebSocket
//   - Janitor: limpeza periódica das chaves vazias
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: estatísticas
package infra
