package mart

import (
	"testing"

	"molt-mart/internal/scan"
)

func TestTrustGate_Decide(t *testing.T) {
	t.Parallel()

	gate := NewTrustGate(3)

	tests := []struct {
		name      string
		verdict   scan.Status
		prior     int
		requested Status
		want      GateDecision
		wantErr   bool
	}{
		{
			name: "rejected verdict blocks regardless of history",
			verdict: scan.StatusRejected, prior: 100, requested: StatusPublished,
			wantErr: true,
		},
		{
			name: "new seller goes to review even when clean",
			verdict: scan.StatusClean, prior: 0, requested: StatusPublished,
			want: GateDecision{State: StatusPendingReview, RequiresReview: true},
		},
		{
			name: "probation boundary is strict",
			verdict: scan.StatusClean, prior: 2, requested: StatusPublished,
			want: GateDecision{State: StatusPendingReview, RequiresReview: true},
		},
		{
			name: "three published artifacts clears probation",
			verdict: scan.StatusClean, prior: 3, requested: StatusPublished,
			want: GateDecision{State: StatusPublished},
		},
		{
			name: "flagged verdict forces review past probation",
			verdict: scan.StatusFlagged, prior: 10, requested: StatusPublished,
			want: GateDecision{State: StatusPendingReview, RequiresReview: true},
		},
		{
			name: "flagged verdict forces review during probation",
			verdict: scan.StatusFlagged, prior: 1, requested: StatusDraft,
			want: GateDecision{State: StatusPendingReview, RequiresReview: true},
		},
		{
			name: "established seller keeps requested draft",
			verdict: scan.StatusClean, prior: 5, requested: StatusDraft,
			want: GateDecision{State: StatusDraft},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := scan.Verdict{Status: tt.verdict}
			if tt.verdict == scan.StatusRejected {
				verdict.Findings = []string{"Destructive shell command (rm -rf) in x.md"}
			}

			got, err := gate.Decide(verdict, tt.prior, tt.requested)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Decide() error = nil, want PolicyViolationError")
				}
				if _, ok := IsPolicyViolation(err); !ok {
					t.Fatalf("Decide() error = %v, want PolicyViolationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decide() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decide() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewTrustGate_DefaultProbation(t *testing.T) {
	t.Parallel()

	if g := NewTrustGate(0); g.Probation != DefaultProbation {
		t.Errorf("Probation = %d, want %d", g.Probation, DefaultProbation)
	}
	if g := NewTrustGate(-1); g.Probation != DefaultProbation {
		t.Errorf("Probation = %d, want %d", g.Probation, DefaultProbation)
	}
	if g := NewTrustGate(7); g.Probation != 7 {
		t.Errorf("Probation = %d, want 7", g.Probation)
	}
}
