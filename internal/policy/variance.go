package policy

import "yield/internal/domain"

// Classification is the tolerance band of an entry.
type Classification string

const (
	Green   Classification = "green"
	Yellow  Classification = "yellow"
	Red     Classification = "red"
	Unknown Classification = "unknown"
)

// Measure is a value that may be undetermined for lack of baseline data.
// An unknown measure must be rendered as "insufficient data", never as zero.
type Measure struct {
	Value float64 `json:"value"`
	Known bool    `json:"known"`
}

func known(v float64) Measure { return Measure{Value: v, Known: true} }

// Variance is the evaluation of one entry against its item's baseline.
// Shortfall is clamped at zero; over-performance is neither penalized nor rewarded.
type Variance struct {
	Expected       Measure        `json:"expected"`
	Shortfall      Measure        `json:"shortfall"`
	LossPct        Measure        `json:"loss_pct"`
	WasteCost      Measure        `json:"waste_cost"`
	Classification Classification `json:"classification"`
}

// Evaluate classifies reading against the baseline b.
//
// expected = input_used * baseline_output / baseline_input, known only when both
// baselines are set and baseline_input != 0. When expected <= 0 there is no
// meaningful loss ratio: the entry is green if output met expectation and
// unknown otherwise.
func Evaluate(b domain.Baseline, r domain.Reading) Variance {
	v := Variance{Classification: Unknown}
	if !b.Input.Valid || !b.Output.Valid || b.Input.Float64 == 0 {
		return v
	}

	expected := r.InputUsed * b.Output.Float64 / b.Input.Float64
	shortfall := expected - r.OutputCount
	if shortfall < 0 {
		shortfall = 0
	}
	v.Expected = known(expected)
	v.Shortfall = known(shortfall)

	if expected > 0 {
		loss := shortfall / expected
		v.LossPct = known(loss)
		v.Classification = classify(loss, b.ToleranceGreen, b.ToleranceYellow)
	} else if r.OutputCount >= expected {
		v.Classification = Green
	}

	if b.Output.Float64 != 0 {
		v.WasteCost = known(shortfall * (b.Input.Float64 / b.Output.Float64) * b.ValuePerUnit)
	}
	return v
}

func classify(lossPct, green, yellow float64) Classification {
	switch {
	case lossPct <= green:
		return Green
	case lossPct <= yellow:
		return Yellow
	default:
		return Red
	}
}

// ItemSummary aggregates the evaluations of one item's entries.
// WasteCost sums known costs only; CostUnknown counts the rest.
type ItemSummary struct {
	Entries     int     `json:"entries"`
	Green       int     `json:"green"`
	Yellow      int     `json:"yellow"`
	Red         int     `json:"red"`
	Unknown     int     `json:"unknown"`
	TotalInput  float64 `json:"total_input"`
	TotalOutput float64 `json:"total_output"`
	WasteCost   float64 `json:"waste_cost"`
	CostUnknown int     `json:"cost_unknown"`
}

func Summarize(b domain.Baseline, readings []domain.Reading) ItemSummary {
	var s ItemSummary
	for _, r := range readings {
		v := Evaluate(b, r)
		s.Entries++
		s.TotalInput += r.InputUsed
		s.TotalOutput += r.OutputCount
		switch v.Classification {
		case Green:
			s.Green++
		case Yellow:
			s.Yellow++
		case Red:
			s.Red++
		default:
			s.Unknown++
		}
		if v.WasteCost.Known {
			s.WasteCost += v.WasteCost.Value
		} else {
			s.CostUnknown++
		}
	}
	return s
}
