package qualify

import (
	"fmt"
	"math"
)

// DefaultThreshold is the minimum total score for a qualified lead.
const DefaultThreshold = 60

// Component weights. They sum to 100; each sub-score is capped at its
// weight before summing.
const (
	weightFit     = 40
	weightBudget  = 25
	weightIntent  = 20
	weightContact = 15
)

// Profile is the scoring input assembled from a session's collected data
// and the latest inventory matches. Pointer fields distinguish "not yet
// collected" from zero values.
type Profile struct {
	Persona      string   `json:"persona,omitempty"`
	City         string   `json:"city,omitempty"`
	Areas        []string `json:"areas,omitempty"`
	Beds         *int     `json:"beds,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	BudgetMin    *int64   `json:"budget_min,omitempty"`
	BudgetMax    *int64   `json:"budget_max,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	MoveInDays   *int     `json:"move_in_days,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Matches      []Match  `json:"matches,omitempty"`
}

// Match is one inventory candidate considered during scoring.
type Match struct {
	UnitID string  `json:"unit_id"`
	Title  string  `json:"title,omitempty"`
	Score  float64 `json:"relevance_score"`
	Price  int64   `json:"price"`
}

// Result is the scored assessment of a lead's readiness and fit.
type Result struct {
	Score       int      `json:"score"`
	Qualified   bool     `json:"qualified"`
	Reasons     []string `json:"reasons"`
	MissingInfo []string `json:"missing_info"`
	NextStep    string   `json:"next_step"`
	Matches     []Match  `json:"matches,omitempty"`
}

// Score computes the weighted lead score: fit 40%, budget alignment 25%,
// intent/urgency 20%, contact readiness 15%. The total rounds to the
// nearest integer; qualified iff total >= threshold.
//
// Pure function: identical input always yields an identical Result.
func Score(p Profile, threshold int) Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var reasons, missing []string

	fit := scoreFit(p, &reasons, &missing)
	budget := scoreBudget(p, &reasons, &missing)
	intent := scoreIntent(p, &reasons, &missing)
	contact := scoreContact(p, &reasons, &missing)

	total := int(math.Round(fit + budget + intent + contact))
	if total > 100 {
		total = 100
	}

	r := Result{
		Score:       total,
		Qualified:   total >= threshold,
		Reasons:     reasons,
		MissingInfo: missing,
		Matches:     p.Matches,
	}
	r.NextStep = nextStep(r, p)
	return r
}

// scoreFit covers requirement completeness and inventory match quality
// (max 40): beds 10, area 10, property type 2, persona 1, city 2, best
// match relevance up to 15.
func scoreFit(p Profile, reasons, missing *[]string) float64 {
	var s float64

	if p.Beds != nil {
		s += 10
		*reasons = append(*reasons, fmt.Sprintf("bedroom requirement captured (%d)", *p.Beds))
	} else {
		*missing = append(*missing, "beds")
	}

	if len(p.Areas) > 0 {
		s += 10
		*reasons = append(*reasons, "preferred area identified: "+p.Areas[0])
	} else {
		*missing = append(*missing, "area")
	}

	if p.PropertyType != "" {
		s += 2
	}
	if p.Persona != "" {
		s += 1
	}
	if p.City != "" {
		s += 2
	}

	if best := bestMatchScore(p.Matches); best > 0 {
		s += best * 15
		*reasons = append(*reasons, fmt.Sprintf("%d matching units in inventory", len(p.Matches)))
	}

	return s
}

// scoreBudget covers budget presence (10) and alignment with matched unit
// prices (up to 15, proportional to units inside the stated range with a
// 10% tolerance on each bound).
func scoreBudget(p Profile, reasons, missing *[]string) float64 {
	if p.BudgetMin == nil || p.BudgetMax == nil {
		*missing = append(*missing, "budget")
		return 0
	}

	s := 10.0
	*reasons = append(*reasons, "budget range provided")

	if len(p.Matches) > 0 {
		lo := float64(*p.BudgetMin) * 0.9
		hi := float64(*p.BudgetMax) * 1.1
		inRange := 0
		for _, m := range p.Matches {
			if price := float64(m.Price); price >= lo && price <= hi {
				inRange++
			}
		}
		if inRange > 0 {
			s += 15 * float64(inRange) / float64(len(p.Matches))
			*reasons = append(*reasons, fmt.Sprintf("budget aligns with %d of %d matched units", inRange, len(p.Matches)))
		}
	}

	return s
}

// scoreIntent buckets the move-in window (max 20).
func scoreIntent(p Profile, reasons, missing *[]string) float64 {
	if p.MoveInDays == nil {
		*missing = append(*missing, "move_in_window")
		return 0
	}

	days := *p.MoveInDays
	var s float64
	switch {
	case days <= 30:
		s = 20
	case days <= 90:
		s = 14
	case days <= 180:
		s = 8
	default:
		s = 4
	}
	*reasons = append(*reasons, fmt.Sprintf("move-in window stated (%d days)", days))
	return s
}

// scoreContact covers contact readiness (email 8, phone 7).
func scoreContact(p Profile, reasons, missing *[]string) float64 {
	var s float64
	if p.Email != "" {
		s += 8
		*reasons = append(*reasons, "email on file")
	}
	if p.Phone != "" {
		s += 7
		*reasons = append(*reasons, "phone on file")
	}
	if s == 0 {
		*missing = append(*missing, "contact")
	}
	return s
}

func bestMatchScore(matches []Match) float64 {
	var best float64
	for _, m := range matches {
		s := m.Score
		if s > 1 {
			s = 1
		}
		if s > best {
			best = s
		}
	}
	return best
}

// nextStep suggests the follow-up action, preferring the biggest gap.
func nextStep(r Result, p Profile) string {
	if r.Qualified {
		if len(p.Matches) > 0 {
			return "Offer to schedule a viewing for the matched units."
		}
		return "Hand off to an agent for a curated shortlist."
	}
	for _, m := range r.MissingInfo {
		switch m {
		case "budget":
			return "Clarify the budget range."
		case "beds":
			return "Ask how many bedrooms are needed."
		case "area":
			return "Ask which areas the buyer prefers."
		case "move_in_window":
			return "Ask about the intended move-in timeline."
		case "contact":
			return "Ask for an email or phone number to follow up."
		}
	}
	return "Continue the conversation to strengthen the profile."
}
