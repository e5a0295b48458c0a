package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"fx-backtest-lab/internal/domain"
)

// fixedProvider returns the same proposal at every decision point and
// records what it was called with.
type fixedProvider struct {
	proposal   *domain.TradeProposal
	err        error
	lastTs     time.Time
	lastParams map[string]float64
	lastLen    int
}

func (p *fixedProvider) Generate(_ context.Context, history []domain.Candle, ts time.Time, params map[string]float64) (*domain.TradeProposal, error) {
	p.lastTs = ts
	p.lastParams = params
	p.lastLen = len(history)
	if p.err != nil {
		return nil, p.err
	}
	if p.proposal == nil {
		return nil, nil
	}
	c := *p.proposal
	return &c, nil
}

func (p *fixedProvider) Name() string { return "fixed" }

func baseParams() map[string]float64 {
	return map[string]float64{
		domain.ParamConfidenceThreshold: 50,
		domain.ParamMinRiskReward:       1.5,
	}
}

func longProposal() *domain.TradeProposal {
	return &domain.TradeProposal{
		Instrument: "EUR_USD",
		Direction:  domain.DirectionLong,
		Entry:      1.1000,
		Stop:       1.0950, // 50 pips risk
		Target:     1.1100, // 100 pips reward, RR = 2.0
		Confidence: 75,
		Pattern:    "spring",
	}
}

func TestProposeAttachesSessionAndTime(t *testing.T) {
	prov := &fixedProvider{proposal: longProposal()}
	a := NewAdapter(prov, baseParams(), nil, nil)

	decision := time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC) // London/NY overlap
	got, err := a.Propose(context.Background(), nil, decision)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if got == nil {
		t.Fatal("expected a proposal")
	}
	if got.Session != domain.SessionOverlap {
		t.Errorf("session %s, want %s", got.Session, domain.SessionOverlap)
	}
	if !got.Time.Equal(decision) {
		t.Errorf("proposal time %s, want decision time %s", got.Time, decision)
	}
	if !prov.lastTs.Equal(decision) {
		t.Errorf("provider called with ts %s, want %s", prov.lastTs, decision)
	}
}

func TestProposeDiscardsOutOfBoundRiskReward(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.TradeProposal)
		params map[string]float64
		want   bool // proposal survives
	}{
		{"within bounds", func(p *domain.TradeProposal) {}, baseParams(), true},
		{"below min rr", func(p *domain.TradeProposal) { p.Target = 1.1050 }, baseParams(), false},
		{"above max rr", func(p *domain.TradeProposal) { p.Target = 1.1500 },
			map[string]float64{
				domain.ParamConfidenceThreshold: 50,
				domain.ParamMinRiskReward:       1.5,
				domain.ParamMaxRiskReward:       4.0,
			}, false},
		{"below confidence", func(p *domain.TradeProposal) { p.Confidence = 30 }, baseParams(), false},
		{"degenerate stop", func(p *domain.TradeProposal) { p.Stop = p.Entry }, baseParams(), false},
	}

	decision := time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prop := longProposal()
			tt.mutate(prop)
			a := NewAdapter(&fixedProvider{proposal: prop}, tt.params, nil, nil)
			got, err := a.Propose(context.Background(), nil, decision)
			if err != nil {
				t.Fatalf("Propose: %v", err)
			}
			if (got != nil) != tt.want {
				t.Errorf("survived=%v, want %v", got != nil, tt.want)
			}
		})
	}
}

func TestProposeUsesSessionOverrides(t *testing.T) {
	prov := &fixedProvider{proposal: longProposal()}
	overrides := map[domain.Session]map[string]float64{
		// RR 2.0 fails the overlap session's tighter minimum.
		domain.SessionOverlap: {domain.ParamMinRiskReward: 2.5},
	}
	a := NewAdapter(prov, baseParams(), overrides, nil)

	overlap := time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)
	got, err := a.Propose(context.Background(), nil, overlap)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if got != nil {
		t.Error("overlap override should have discarded the proposal")
	}
	if prov.lastParams[domain.ParamMinRiskReward] != 2.5 {
		t.Errorf("provider saw min_risk_reward %.2f, want overridden 2.5",
			prov.lastParams[domain.ParamMinRiskReward])
	}

	tokyo := time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC)
	got, err = a.Propose(context.Background(), nil, tokyo)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if got == nil {
		t.Error("universal params should have accepted the proposal")
	}
}

func TestProposePropagatesProviderError(t *testing.T) {
	wantErr := errors.New("provider blew up")
	a := NewAdapter(&fixedProvider{err: wantErr}, baseParams(), nil, nil)
	_, err := a.Propose(context.Background(), nil, time.Now().UTC())
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want provider error", err)
	}
}
