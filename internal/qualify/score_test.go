package qualify

import (
	"reflect"
	"testing"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func fullProfile() Profile {
	return Profile{
		Persona:      "buyer",
		City:         "Dubai",
		Areas:        []string{"Dubai Marina"},
		Beds:         intPtr(2),
		PropertyType: "apartment",
		BudgetMin:    int64Ptr(1_500_000),
		BudgetMax:    int64Ptr(1_500_000),
		Currency:     "AED",
		MoveInDays:   intPtr(60),
		Email:        "buyer@example.com",
		Phone:        "+971501234567",
		Matches: []Match{
			{UnitID: "u1", Score: 0.9, Price: 1_450_000},
			{UnitID: "u2", Score: 0.8, Price: 1_600_000},
		},
	}
}

func TestScoreIsPure(t *testing.T) {
	p := fullProfile()
	first := Score(p, DefaultThreshold)
	for range 5 {
		got := Score(p, DefaultThreshold)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("Score not pure: %+v != %+v", got, first)
		}
	}
}

func TestScoreFullProfileQualifies(t *testing.T) {
	r := Score(fullProfile(), DefaultThreshold)
	if !r.Qualified {
		t.Errorf("full profile not qualified, score=%d", r.Score)
	}
	if r.Score < DefaultThreshold || r.Score > 100 {
		t.Errorf("score %d out of expected range [%d,100]", r.Score, DefaultThreshold)
	}
	if len(r.MissingInfo) != 0 {
		t.Errorf("full profile has missing info: %v", r.MissingInfo)
	}
}

func TestScoreEmptyProfile(t *testing.T) {
	r := Score(Profile{}, DefaultThreshold)
	if r.Qualified {
		t.Errorf("empty profile qualified with score %d", r.Score)
	}
	if r.Score != 0 {
		t.Errorf("empty profile score = %d, want 0", r.Score)
	}
	// Missing-info flags come in a fixed order.
	want := []string{"beds", "area", "budget", "move_in_window", "contact"}
	if !reflect.DeepEqual(r.MissingInfo, want) {
		t.Errorf("MissingInfo = %v, want %v", r.MissingInfo, want)
	}
	if r.NextStep == "" {
		t.Error("empty profile should still suggest a next step")
	}
}

func TestScoreThresholdBoundary(t *testing.T) {
	p := fullProfile()
	r := Score(p, DefaultThreshold)

	// Raising the threshold just above the score flips qualification;
	// the score itself must not move.
	higher := Score(p, r.Score+1)
	if higher.Qualified {
		t.Error("qualified with threshold above the score")
	}
	if higher.Score != r.Score {
		t.Errorf("score changed with threshold: %d != %d", higher.Score, r.Score)
	}

	exact := Score(p, r.Score)
	if !exact.Qualified {
		t.Error("threshold equal to score must qualify (>=)")
	}
}

func TestScoreBudgetAlignment(t *testing.T) {
	base := Profile{
		BudgetMin: int64Ptr(1_000_000),
		BudgetMax: int64Ptr(1_200_000),
	}

	aligned := base
	aligned.Matches = []Match{{UnitID: "a", Score: 0.5, Price: 1_100_000}}

	misaligned := base
	misaligned.Matches = []Match{{UnitID: "b", Score: 0.5, Price: 5_000_000}}

	sa := Score(aligned, DefaultThreshold)
	sm := Score(misaligned, DefaultThreshold)
	if sa.Score <= sm.Score {
		t.Errorf("aligned budget score %d should exceed misaligned %d", sa.Score, sm.Score)
	}
}

func TestScoreContactReadiness(t *testing.T) {
	withEmail := Score(Profile{Email: "x@y.com"}, DefaultThreshold)
	withBoth := Score(Profile{Email: "x@y.com", Phone: "+971501234567"}, DefaultThreshold)
	if withBoth.Score-withEmail.Score != 7 {
		t.Errorf("phone contribution = %d, want 7", withBoth.Score-withEmail.Score)
	}
	if withEmail.Score != 8 {
		t.Errorf("email contribution = %d, want 8", withEmail.Score)
	}
}

func TestScoreIntentBuckets(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{14, 20}, {30, 20}, {60, 14}, {90, 14}, {120, 8}, {365, 4},
	}
	for _, tt := range tests {
		r := Score(Profile{MoveInDays: intPtr(tt.days)}, DefaultThreshold)
		if r.Score != tt.want {
			t.Errorf("move-in %d days: score = %d, want %d", tt.days, r.Score, tt.want)
		}
	}
}
