package mart

import "molt-mart/internal/scan"

// GateDecision is the publication-state outcome for one ingestion.
// It is derived, written into the artifact record, and recomputed only on
// a fresh upload; nothing downstream mutates it.
type GateDecision struct {
	State          Status
	RequiresReview bool
}

// TrustGate turns a scan verdict plus seller history into a publication
// state. Probation is the number of published artifacts a seller must have
// before uploads can go live without review.
type TrustGate struct {
	Probation int
}

// DefaultProbation forces review for a seller's first three artifacts.
const DefaultProbation = 3

// NewTrustGate creates a gate; a non-positive probation falls back to
// DefaultProbation.
func NewTrustGate(probation int) *TrustGate {
	if probation <= 0 {
		probation = DefaultProbation
	}
	return &TrustGate{Probation: probation}
}

// Decide maps every (verdict, history, requested) triple to exactly one
// decision. Rules apply in order:
//
//  1. rejected verdict: hard block, no override; the caller must not
//     persist the artifact and must clean up any written blob.
//  2. new seller (fewer than Probation published artifacts): pending
//     review, regardless of how clean the scan was.
//  3. flagged verdict: pending review.
//  4. otherwise the seller's requested state stands.
func (g *TrustGate) Decide(verdict scan.Verdict, priorPublished int, requested Status) (GateDecision, error) {
	if verdict.Status == scan.StatusRejected {
		return GateDecision{}, &PolicyViolationError{Findings: verdict.Findings}
	}
	if priorPublished < g.Probation {
		return GateDecision{State: StatusPendingReview, RequiresReview: true}, nil
	}
	if verdict.Status == scan.StatusFlagged {
		return GateDecision{State: StatusPendingReview, RequiresReview: true}, nil
	}
	return GateDecision{State: requested, RequiresReview: false}, nil
}
