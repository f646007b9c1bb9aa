package plan

// RiskLevel estimates the blast radius of applying a plan.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// IsHighRisk reports whether the level is high or critical.
func (r RiskLevel) IsHighRisk() bool {
	return r == RiskHigh || r == RiskCritical
}

// stepRisk is the baseline risk per step kind. Irreversible steps rank one
// level higher than their baseline.
var stepRisk = map[StepKind]RiskLevel{
	StepCreateBranch:      RiskLow,
	StepGenerateTests:     RiskLow,
	StepGenerateCode:      RiskMedium,
	StepInstallDependency: RiskMedium,
	StepModifyFile:        RiskMedium,
}

// AssessRisk returns the highest risk across a plan's steps.
func AssessRisk(steps []Step) RiskLevel {
	level := RiskLow
	for _, step := range steps {
		r, ok := stepRisk[step.Kind]
		if !ok {
			r = RiskHigh
		}
		if !step.Reversible {
			r = raise(r)
		}
		if riskRank[r] > riskRank[level] {
			level = r
		}
	}
	return level
}

func raise(r RiskLevel) RiskLevel {
	switch r {
	case RiskLow:
		return RiskMedium
	case RiskMedium:
		return RiskHigh
	default:
		return RiskCritical
	}
}
