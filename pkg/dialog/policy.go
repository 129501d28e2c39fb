package dialog

import "github.com/aretw0/parley/pkg/domain"

// PolicyResult is what an ActionPolicy suggests for entry-node resolution.
// An empty Action means "use the fallback".
type PolicyResult struct {
	Action  string
	Ranking []string
}

// ActionPolicy is the external strategy consulted when no explicit intent
// trigger matches. Implementations typically rank candidate nodes from the
// step hashes in the session history.
type ActionPolicy interface {
	Process(msg *domain.Message, sess Session) PolicyResult
}
