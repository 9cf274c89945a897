package infra

import "sync"

// StreamSlots guarda, por conexão WebSocket, o conjunto de streams registrados.
// Invariante: nenhuma conexão passa de max streams.
type StreamSlots struct {
	mu    sync.Mutex
	max   int
	conns map[string]map[string]struct{}
}

func NewStreamSlots(max int) *StreamSlots {
	return &StreamSlots{
		max:   max,
		conns: make(map[string]map[string]struct{}),
	}
}

func (s *StreamSlots) Max() int { return s.max }

// Register registra streamID em connID.
//
// Re-registrar um stream já presente é no-op (existing=true). ok=false quando
// a conexão já está no máximo. count é o número de streams após a operação.
func (s *StreamSlots) Register(connID, streamID string) (ok, existing bool, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.conns[connID]
	if _, found := set[streamID]; found {
		return true, true, len(set)
	}
	if len(set) >= s.max {
		return false, false, len(set)
	}
	if set == nil {
		set = make(map[string]struct{})
		s.conns[connID] = set
	}
	set[streamID] = struct{}{}
	return true, false, len(set)
}

// Unregister libera um stream. Retorna false se ele não estava registrado.
func (s *StreamSlots) Unregister(connID, streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[connID]
	if !ok {
		return false
	}
	if _, ok := set[streamID]; !ok {
		return false
	}
	delete(set, streamID)
	if len(set) == 0 {
		delete(s.conns, connID)
	}
	return true
}

// Release libera todos os streams da conexão (socket fechado).
func (s *StreamSlots) Release(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.conns[connID])
	delete(s.conns, connID)
	return n
}

func (s *StreamSlots) Count(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[connID])
}

// Connections é a sonda de tamanho: conexões com ao menos um stream.
func (s *StreamSlots) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
