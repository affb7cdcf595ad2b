package verify

import "github.com/leadvalidator/leadvalidator/config"

// scorer turns a base verdict and its penalties into a clamped 0..100 score.
type scorer struct {
	cfg config.ScoringConfig
}

func (s scorer) clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// deliverable scores a mailbox the server accepted outright.
func (s scorer) deliverable(freeProvider bool) int {
	score := 100
	if freeProvider {
		score -= s.cfg.FreeProvider
	}
	return s.clamp(score)
}

// catchAll scores an address on a domain that accepts any recipient.
func (s scorer) catchAll(freeProvider bool) int {
	score := 100 - s.cfg.CatchAll
	if freeProvider {
		score -= s.cfg.FreeProvider
	}
	return s.clamp(score)
}

// unreachable scores an address whose mail host never gave a verdict.
func (s scorer) unreachable() int {
	return s.clamp(100 - s.cfg.Unreachable)
}

// unverifiable scores an address whose domain could not even be resolved
// conclusively.
func (s scorer) unverifiable() int {
	return s.clamp(100 - s.cfg.Unverifiable)
}
