package relay

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// DebugHandler 返回 /debug/topics 所需的 handler。
func (s *Store) DebugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := s.snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	})
}

type debugSnapshot struct {
	Stored    int       `json:"stored"`
	TTL       string    `json:"ttl"`
	Topics    []string  `json:"topics"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Store) snapshot() debugSnapshot {
	snap := debugSnapshot{TTL: s.cfg.TTL.String(), Timestamp: s.cfg.Clock.Now()}
	s.mu.Lock()
	snap.Stored = len(s.topics)
	snap.Topics = make([]string, 0, len(s.topics))
	for id := range s.topics {
		snap.Topics = append(snap.Topics, id)
	}
	s.mu.Unlock()
	sort.Strings(snap.Topics)
	return snap
}
