package adaptive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

// DedupSet records idempotency keys that have already been applied. The
// caller owns it and decides its lifetime; it is safe for concurrent use.
type DedupSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewDedupSet() *DedupSet {
	return &DedupSet{keys: make(map[string]struct{})}
}

// Mark adds key and reports whether it was absent.
func (s *DedupSet) Mark(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, seen := s.keys[key]; seen {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *DedupSet) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

func (s *DedupSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

func (s *DedupSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// decisionNamespace scopes DecisionKey so keys never collide with other
// name-based UUIDs.
var decisionNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("neurocomp.adaptive.decision"))

// DecisionKey derives a stable idempotency key for a decision about one
// graph on one target within an epoch chosen by the caller.
func DecisionKey(graph, target string, epoch uint64, d Decision) string {
	name := fmt.Sprintf("%s\x00%s\x00%d\x00%s", graph, target, epoch, d)
	return uuid.NewSHA1(decisionNamespace, []byte(name)).String()
}

type ActionFunc func(ctx context.Context, d Decision) error

// Applier runs Action for each decision whose key has not been applied yet.
// NoChange is never applied. A failed action releases its key so the same
// decision can be retried.
type Applier struct {
	Dedup  *DedupSet
	Action ActionFunc
}

func (a *Applier) Apply(ctx context.Context, key string, d Decision) (bool, error) {
	if a.Dedup == nil {
		return false, errors.New("dedup set is required")
	}
	if key == "" {
		return false, errors.New("idempotency key is required")
	}
	if d == NoChange {
		return false, nil
	}
	if !a.Dedup.Mark(key) {
		log.Debug(ctx, log.KV{K: "msg", V: "decision already applied"}, log.KV{K: "key", V: key})
		return false, nil
	}
	if a.Action != nil {
		if err := a.Action(ctx, d); err != nil {
			a.Dedup.Forget(key)
			return false, fmt.Errorf("apply %s: %w", d, err)
		}
	}
	log.Info(ctx, log.KV{K: "msg", V: "decision applied"}, log.KV{K: "decision", V: string(d)}, log.KV{K: "key", V: key})
	return true, nil
}
