// Package entity defines the fixed set of warehouse entities the pipeline
// knows how to load, their load strategies, and the dependency order between
// them.
//
// The registry is built once at init and never mutated afterwards. Loaders,
// the watermark store, and the orchestrator all key off Descriptor.Name.
package entity

import "fmt"

// Strategy controls how often an entity is refreshed.
type Strategy string

const (
	// PreSeason entities are reference data loaded once per season from the
	// bulk CSV dump (circuits, drivers, calendar, ...).
	PreSeason Strategy = "pre_season"

	// PostRace entities are results/standings loaded incrementally after each
	// event, gated by the settle buffer.
	PostRace Strategy = "post_race"
)

// Descriptor describes one entity: where it lives in the warehouse, how it is
// sourced, and which entities must be loaded before it.
//
// Descriptors are immutable; the package exposes them by value.
type Descriptor struct {
	// Name is the entity identifier used for watermark/log keying.
	Name string

	// Table is the unqualified warehouse table name.
	Table string

	Strategy Strategy

	// Dependencies lists entity names that must have been loaded at least once
	// for the same season before this entity loads.
	Dependencies []string

	// Endpoint is the parametrized API path for post-race entities
	// ("%d" year, "%d" round). Empty for bulk-dump entities.
	Endpoint string

	// CSVName is the file inside the bulk dump archive for pre-season
	// entities. Empty for endpoint-sourced entities.
	CSVName string
}

// LoadOrder is the full dependency-respecting load order.
var LoadOrder = []string{
	"circuit",
	"season",
	"team",
	"round",
	"session",
	"driver",
	"team_driver",
	"sprint_result",
	"qualifying_result",
	"race_result",
	"driver_championship",
	"team_championship",
}

// Modes maps a run mode to the ordered entity subset it processes.
var Modes = map[string][]string{
	"all":        LoadOrder,
	"pre_season": {"circuit", "season", "round", "session", "team", "driver", "team_driver"},
	"post_race":  {"sprint_result", "qualifying_result", "race_result", "driver_championship", "team_championship"},
}

var registry = map[string]Descriptor{
	"circuit": {
		Name:     "circuit",
		Table:    "circuit",
		Strategy: PreSeason,
		CSVName:  "formula_one_circuit.csv",
	},
	"season": {
		Name:     "season",
		Table:    "season",
		Strategy: PreSeason,
		CSVName:  "formula_one_season.csv",
	},
	"team": {
		Name:         "team",
		Table:        "team",
		Strategy:     PreSeason,
		Dependencies: []string{"season"},
		CSVName:      "formula_one_team.csv",
	},
	"round": {
		Name:         "round",
		Table:        "round",
		Strategy:     PreSeason,
		Dependencies: []string{"season", "circuit"},
		CSVName:      "formula_one_round.csv",
	},
	"session": {
		Name:         "session",
		Table:        "session",
		Strategy:     PreSeason,
		Dependencies: []string{"round"},
		CSVName:      "formula_one_session.csv",
	},
	"driver": {
		Name:     "driver",
		Table:    "driver",
		Strategy: PreSeason,
		CSVName:  "formula_one_driver.csv",
	},
	"team_driver": {
		Name:         "team_driver",
		Table:        "team_driver",
		Strategy:     PreSeason,
		Dependencies: []string{"driver", "team", "season"},
		CSVName:      "formula_one_teamdriver.csv",
	},
	"sprint_result": {
		Name:         "sprint_result",
		Table:        "sprint_result",
		Strategy:     PostRace,
		Dependencies: []string{"team", "round", "session"},
		Endpoint:     "/%d/%d/sprint.json",
	},
	"qualifying_result": {
		Name:         "qualifying_result",
		Table:        "qualifying_result",
		Strategy:     PostRace,
		Dependencies: []string{"team", "round", "session"},
		Endpoint:     "/%d/%d/qualifying.json",
	},
	"race_result": {
		Name:         "race_result",
		Table:        "race_result",
		Strategy:     PostRace,
		Dependencies: []string{"team", "round", "session"},
		Endpoint:     "/%d/%d/results.json",
	},
	"driver_championship": {
		Name:         "driver_championship",
		Table:        "driver_championship",
		Strategy:     PostRace,
		Dependencies: []string{"driver", "round", "session"},
		Endpoint:     "/%d/%d/driverStandings.json",
	},
	"team_championship": {
		Name:         "team_championship",
		Table:        "team_championship",
		Strategy:     PostRace,
		Dependencies: []string{"team", "round", "session"},
		Endpoint:     "/%d/%d/constructorStandings.json",
	},
}

// Get returns the descriptor for name.
func Get(name string) (Descriptor, bool) {
	d, ok := registry[name]
	return d, ok
}

// Names returns all registered entity names in load order.
func Names() []string {
	out := make([]string, len(LoadOrder))
	copy(out, LoadOrder)
	return out
}

// Validate checks registry consistency:
//   - every entity in LoadOrder is registered, and vice versa
//   - every dependency is itself a registered entity
//   - every dependency precedes its dependent in LoadOrder (DAG in load order)
//   - every mode references only registered entities
//
// It is called once from the CLI at startup; a failure is a programming error
// in this package, not a runtime condition.
func Validate() error {
	pos := make(map[string]int, len(LoadOrder))
	for i, name := range LoadOrder {
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("entity: %q in LoadOrder but not registered", name)
		}
		pos[name] = i
	}
	if len(pos) != len(registry) {
		return fmt.Errorf("entity: registry has %d entities, LoadOrder has %d", len(registry), len(pos))
	}

	for name, d := range registry {
		for _, dep := range d.Dependencies {
			depPos, ok := pos[dep]
			if !ok {
				return fmt.Errorf("entity: %s depends on unknown entity %q", name, dep)
			}
			if depPos >= pos[name] {
				return fmt.Errorf("entity: %s depends on %s which loads later", name, dep)
			}
		}
	}

	for mode, names := range Modes {
		for _, name := range names {
			if _, ok := registry[name]; !ok {
				return fmt.Errorf("entity: mode %s references unknown entity %q", mode, name)
			}
		}
	}
	return nil
}
