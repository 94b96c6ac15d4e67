package health

import "flairnode-agent/internal/model"

// Condition matches when any of Modules currently reports any of Statuses.
type Condition struct {
	Modules  []string
	Statuses []model.Status
}

// Rule maps a set of module conditions to an overall device status.
// Rules are evaluated in order and the first match wins. A rule with
// Fallback set engages fallback mode when it matches and disengages it
// when it is evaluated without matching.
type Rule struct {
	Name      string
	When      []Condition
	Overall   string
	Indicator IndicatorColor
	Fallback  bool
}

// RuleTargets names the modules the default rule set watches. Empty
// lists disable the rules that depend on them.
type RuleTargets struct {
	OutputModules   []string
	FallbackModules []string
	ConfigModule    string
	StatusModule    string
	NetworkModule   string
}

func DefaultRules(t RuleTargets) []Rule {
	return []Rule{
		{
			Name:      "output-errored",
			When:      []Condition{{Modules: t.OutputModules, Statuses: []model.Status{model.StatusErrored}}},
			Overall:   "errored",
			Indicator: IndicatorSolidAlert,
		},
		{
			Name:      "fallback",
			When:      []Condition{{Modules: t.FallbackModules, Statuses: []model.Status{model.StatusErrored}}},
			Overall:   "white",
			Indicator: IndicatorFallback,
			Fallback:  true,
		},
		{
			Name: "degraded",
			When: []Condition{
				{Modules: t.FallbackModules, Statuses: []model.Status{model.StatusDegraded}},
				{Modules: nonEmpty(t.ConfigModule, t.StatusModule, t.NetworkModule), Statuses: []model.Status{model.StatusErrored}},
			},
			Overall:   "degraded",
			Indicator: IndicatorIssue,
		},
		{
			Name:      "online",
			When:      []Condition{{Modules: nonEmpty(t.NetworkModule), Statuses: []model.Status{model.StatusOnline}}},
			Overall:   "online",
			Indicator: IndicatorOnline,
		},
		{
			Name:      "offline",
			When:      []Condition{{Modules: nonEmpty(t.NetworkModule), Statuses: []model.Status{model.StatusOffline}}},
			Overall:   "offline",
			Indicator: IndicatorOffline,
		},
	}
}

func (r Rule) active() bool {
	for _, c := range r.When {
		if len(c.Modules) > 0 && len(c.Statuses) > 0 {
			return true
		}
	}
	return false
}

func (r Rule) matches(status func(name string) model.Status) bool {
	for _, c := range r.When {
		for _, name := range c.Modules {
			current := status(name)
			for _, s := range c.Statuses {
				if current == s {
					return true
				}
			}
		}
	}
	return false
}

// decision is the outcome of one rule evaluation pass. Side effects are
// applied by the caller after releasing the aggregator lock.
type decision struct {
	matched   bool
	rule      string
	overall   string
	indicator IndicatorColor
	fallback  *bool
}

func evaluate(rules []Rule, status func(name string) model.Status) decision {
	var d decision
	for _, r := range rules {
		if !r.active() {
			continue
		}
		if r.matches(status) {
			d.matched = true
			d.rule = r.Name
			d.overall = r.Overall
			d.indicator = r.Indicator
			if r.Fallback {
				on := true
				d.fallback = &on
			}
			return d
		}
		if r.Fallback {
			off := false
			d.fallback = &off
		}
	}
	return d
}

func nonEmpty(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
