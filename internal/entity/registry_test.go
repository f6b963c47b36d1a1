package entity

import "testing"

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDependenciesPrecedeDependents(t *testing.T) {
	t.Parallel()

	pos := map[string]int{}
	for i, name := range LoadOrder {
		pos[name] = i
	}

	for _, name := range LoadOrder {
		d, ok := Get(name)
		if !ok {
			t.Fatalf("Get(%q): not registered", name)
		}
		for _, dep := range d.Dependencies {
			if pos[dep] >= pos[name] {
				t.Errorf("%s: dependency %s loads at %d, after %d", name, dep, pos[dep], pos[name])
			}
		}
	}
}

func TestModeMembership(t *testing.T) {
	t.Parallel()

	for _, name := range Modes["pre_season"] {
		d, _ := Get(name)
		if d.Strategy != PreSeason {
			t.Errorf("pre_season mode contains %s with strategy %s", name, d.Strategy)
		}
		if d.CSVName == "" {
			t.Errorf("%s: pre-season entity without a dump CSV name", name)
		}
	}
	for _, name := range Modes["post_race"] {
		d, _ := Get(name)
		if d.Strategy != PostRace {
			t.Errorf("post_race mode contains %s with strategy %s", name, d.Strategy)
		}
		if d.Endpoint == "" {
			t.Errorf("%s: post-race entity without an endpoint", name)
		}
	}
	if got, want := len(Modes["all"]), len(LoadOrder); got != want {
		t.Fatalf("mode all has %d entities, want %d", got, want)
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	if _, ok := Get("lap_time"); ok {
		t.Fatalf("Get(lap_time): expected ok=false")
	}
}
