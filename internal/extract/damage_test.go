package extract

import (
	"testing"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

func TestDamageSummary(t *testing.T) {
	r := DamageResult{
		Success:    true,
		Confidence: 0.82,
		Damages: []domain.DamageItem{
			{Type: "Scratch", Severity: "High", Location: "Screen", Confidence: 0.9},
			{Type: "Dent", Severity: "Low", Location: "Unknown"},
		},
	}

	want := "Damage Analysis (Confidence: 82%)\n" +
		"1. Scratch (High)\n" +
		"   Location: Screen\n" +
		"   Confidence: 90%\n" +
		"2. Dent (Low)"

	if got := DamageSummary(r); got != want {
		t.Errorf("DamageSummary() =\n%s\nwant\n%s", got, want)
	}
}

func TestDamageSummary_NoDamage(t *testing.T) {
	for _, r := range []DamageResult{{Success: false}, {Success: true}} {
		if got := DamageSummary(r); got != noDamageSummary {
			t.Errorf("DamageSummary(%+v) = %q, want %q", r, got, noDamageSummary)
		}
	}
}

func TestDamageRecommendation(t *testing.T) {
	tests := []struct {
		name string
		r    DamageResult
		want string
	}{
		{"failed", DamageResult{Success: false}, RecommendClearerImages},
		{"empty", DamageResult{Success: true}, RecommendNoVisibleDamage},
		{
			name: "high confidence severe",
			r: DamageResult{Success: true, Damages: []domain.DamageItem{
				{Severity: "High", Confidence: 0.9},
				{Severity: "Low", Confidence: 0.8},
			}},
			want: RecommendLikelyApproval,
		},
		{
			name: "high confidence no severe",
			r: DamageResult{Success: true, Damages: []domain.DamageItem{
				{Severity: "Medium", Confidence: 0.75},
			}},
			want: RecommendReview,
		},
		{
			name: "moderate confidence",
			r: DamageResult{Success: true, Damages: []domain.DamageItem{
				{Severity: "High", Confidence: 0.6},
			}},
			want: RecommendReview,
		},
		{
			name: "low confidence",
			r: DamageResult{Success: true, Damages: []domain.DamageItem{
				{Severity: "High", Confidence: 0.4},
			}},
			want: RecommendMoreDetail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DamageRecommendation(tt.r); got != tt.want {
				t.Errorf("DamageRecommendation() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTopDamages(t *testing.T) {
	items := []domain.DamageItem{{Type: "a"}, {Type: "b"}, {Type: "c"}, {Type: "d"}}
	if got := TopDamages(items, 3); len(got) != 3 || got[2].Type != "c" {
		t.Errorf("TopDamages() = %v", got)
	}
	if got := TopDamages(items[:2], 3); len(got) != 2 {
		t.Errorf("TopDamages(short) = %v", got)
	}
}
