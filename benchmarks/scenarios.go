package benchmarks

import "github.com/sarchlab/pipeviz/timing/config"

// GetScenarios returns the standard hazard scenarios.
func GetScenarios() []Benchmark {
	return []Benchmark{
		hazardFree(),
		reference(),
		independent(),
		rawHeavy(),
		controlHeavy(),
	}
}

func hazardFree() Benchmark {
	return Benchmark{
		Name:        "hazard_free",
		Description: "All probabilities zero; the ideal pipeline",
		Setup: func(cfg *config.Config) {
			cfg.Hazard = config.HazardConfig{}
		},
	}
}

func reference() Benchmark {
	return Benchmark{
		Name:        "reference",
		Description: "Default probabilities with every instruction dependent",
	}
}

// independent leaves only background hazards.
func independent() Benchmark {
	return Benchmark{
		Name:        "independent",
		Description: "No dependencies; only background hazards stall",
		Setup: func(cfg *config.Config) {
			cfg.DependencyProbability = 0
		},
	}
}

func rawHeavy() Benchmark {
	return Benchmark{
		Name:        "raw_heavy",
		Description: "RAW hazards almost always stall a dependent Execute",
		Setup: func(cfg *config.Config) {
			cfg.Hazard.RAWProbability = 0.95
			cfg.Hazard.ControlProbability = 0
			cfg.Hazard.StructuralProbability = 0
		},
	}
}

func controlHeavy() Benchmark {
	return Benchmark{
		Name:        "control_heavy",
		Description: "Branches and jumps stall on most transitions",
		Setup: func(cfg *config.Config) {
			cfg.Hazard.RAWProbability = 0
			cfg.Hazard.ControlProbability = 0.9
		},
	}
}
