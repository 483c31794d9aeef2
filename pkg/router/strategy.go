package router

// StrategyKind names one of the four fixed routing strategies.
type StrategyKind string

const (
	StrategyCostEfficient     StrategyKind = "costEfficient"
	StrategyQualityFirst      StrategyKind = "qualityFirst"
	StrategySpeedFirst        StrategyKind = "speedFirst"
	StrategyResourceEfficient StrategyKind = "resourceEfficient"
)

// Strategy is a named preset of routing preferences. The set is closed;
// only the four preset variants below exist.
type Strategy struct {
	Kind                       StrategyKind
	PrioritizeSpeed            bool
	PrioritizeQuality          bool
	RequireLocalOnly           bool
	MaximizeResourceEfficiency bool
}

var (
	costEfficient = Strategy{
		Kind: StrategyCostEfficient,
	}
	qualityFirst = Strategy{
		Kind:              StrategyQualityFirst,
		PrioritizeQuality: true,
	}
	speedFirst = Strategy{
		Kind:            StrategySpeedFirst,
		PrioritizeSpeed: true,
	}
	resourceEfficient = Strategy{
		Kind:                       StrategyResourceEfficient,
		RequireLocalOnly:           true,
		MaximizeResourceEfficiency: true,
	}
)

// SelectStrategy picks the routing strategy for a task. A quality priority
// or complexity at or above the complex threshold forces qualityFirst.
func (r *Router) SelectStrategy(complexity float64, priority string) Strategy {
	switch {
	case priority == "speed":
		return speedFirst
	case priority == "quality" || complexity >= r.cfg.Thresholds.ComplexityComplex:
		return qualityFirst
	case priority == "efficiency":
		return resourceEfficient
	default:
		return costEfficient
	}
}
