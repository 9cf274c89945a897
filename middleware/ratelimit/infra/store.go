package infra

import (
	"sync"
	"time"

	"exchange-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 32

// WindowStore guarda, por chave, o log ordenado de requisições admitidas.
//
// O mapa é dividido em shards; cada shard tem seu próprio mutex e toda
// leitura-modificação-escrita de uma chave acontece sob o lock do shard dela.
// O janitor usa a mesma disciplina, então uma chave nunca é removida no meio
// de uma checagem.
type WindowStore struct {
	window time.Duration
	shards []*windowShard
}

type windowShard struct {
	mu      sync.Mutex
	windows map[domain.Key][]domain.Entry
}

func NewWindowStore(window time.Duration, shards int) *WindowStore {
	if shards <= 0 {
		shards = defaultShards
	}
	s := &WindowStore{
		window: window,
		shards: make([]*windowShard, shards),
	}
	for i := range s.shards {
		s.shards[i] = &windowShard{windows: make(map[domain.Key][]domain.Entry)}
	}
	return s
}

func (s *WindowStore) Window() time.Duration { return s.window }

func (s *WindowStore) shard(key domain.Key) *windowShard {
	h := xxhash.Sum64String(key.String())
	return s.shards[h%uint64(len(s.shards))]
}

// Update executa fn com as entradas já podadas para `now`. O slice devolvido
// por fn vira o novo estado da chave; vazio remove a chave na mesma seção crítica.
func (s *WindowStore) Update(key domain.Key, now time.Time, fn func(entries []domain.Entry) []domain.Entry) {
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	entries := prune(sh.windows[key], now.Add(-s.window))
	entries = fn(entries)
	if len(entries) == 0 {
		delete(sh.windows, key)
		return
	}
	sh.windows[key] = entries
}

// Delete remove o estado de uma chave (reset manual).
func (s *WindowStore) Delete(key domain.Key) {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.windows, key)
	sh.mu.Unlock()
}

// Sweep poda todas as chaves e remove as que ficaram vazias.
// Retorna quantas chaves foram removidas.
func (s *WindowStore) Sweep(now time.Time) int {
	cutoff := now.Add(-s.window)
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, entries := range sh.windows {
			entries = prune(entries, cutoff)
			if len(entries) == 0 {
				delete(sh.windows, k)
				evicted++
				continue
			}
			sh.windows[k] = entries
		}
		sh.mu.Unlock()
	}
	return evicted
}

// Len é a sonda de tamanho: número de chaves com estado.
func (s *WindowStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}

// Identifiers lista os identificadores que ainda têm alguma chave no store.
func (s *WindowStore) Identifiers() map[string]struct{} {
	out := make(map[string]struct{})
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k := range sh.windows {
			out[k.Identifier] = struct{}{}
		}
		sh.mu.Unlock()
	}
	return out
}

// prune descarta entradas com At <= cutoff. As entradas estão em ordem de chegada.
func prune(entries []domain.Entry, cutoff time.Time) []domain.Entry {
	i := 0
	for i < len(entries) && !entries[i].At.After(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	// copia para não segurar o array antigo indefinidamente
	out := make([]domain.Entry, len(entries)-i)
	copy(out, entries[i:])
	return out
}
