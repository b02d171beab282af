package analytics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

var ErrInvalidRule = errors.New("invalid insight rule")

// DefaultRules — встроенный набор правил. Файл правил (analytics.rules_file) его заменяет.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:           "bookings_strong_decline",
			Metric:         MetricWeeklyBookingChange,
			Condition:      ConditionBelow,
			Threshold:      StrongDeclineThreshold,
			Severity:       SeverityCritical,
			Title:          "Bookings dropped sharply",
			Description:    "Bookings fell {{pct (abs .Value)}} week over week ({{.Previous}} -> {{.Current}}).",
			Recommendation: "Check pricing, availability and recent campaign changes.",
		},
		{
			Name:           "bookings_decline",
			Metric:         MetricWeeklyBookingChange,
			Condition:      ConditionBelow,
			Threshold:      ModerateDeclineThreshold,
			Severity:       SeverityWarning,
			Title:          "Bookings are declining",
			Description:    "Bookings fell {{pct (abs .Value)}} week over week ({{.Previous}} -> {{.Current}}).",
			Recommendation: "Review demand by destination and follow up on pending bookings.",
		},
		{
			Name:           "bookings_strong_growth",
			Metric:         MetricWeeklyBookingChange,
			Condition:      ConditionAbove,
			Threshold:      StrongGrowthThreshold,
			Severity:       SeverityInfo,
			Title:          "Bookings are growing fast",
			Description:    "Bookings grew {{pct .Value}} week over week ({{.Previous}} -> {{.Current}}).",
			Recommendation: "Make sure partners can handle the extra volume.",
		},
		{
			Name:           "conversion_drop",
			Metric:         MetricWeeklyConversionChange,
			Condition:      ConditionBelow,
			Threshold:      -5,
			Severity:       SeverityWarning,
			Title:          "Conversion rate dropped",
			Description:    "Conversion went from {{pct .Previous}} to {{pct .Current}}.",
			Recommendation: "Contact customers with pending bookings and review the checkout flow.",
		},
		{
			Name:           "high_cancellation_rate",
			Metric:         MetricCancellationRate,
			Condition:      ConditionAbove,
			Threshold:      25,
			Severity:       SeverityWarning,
			Title:          "Many cancellations",
			Description:    "{{pct .Value}} of this week's bookings were cancelled.",
			Recommendation: "Ask cancelled customers for the reason and check supplier issues.",
		},
		{
			Name:           "destination_share_growth",
			Metric:         MetricDestinationShareGrowth,
			Condition:      ConditionAbove,
			Threshold:      20,
			Severity:       SeverityInfo,
			Title:          "{{.Subject}} is gaining popularity",
			Description:    "Share of {{.Subject}} grew from {{pct .Previous}} to {{pct .Current}}.",
			Recommendation: "Consider promoting more {{.Subject}} packages.",
		},
		{
			Name:           "outstanding_balance",
			Metric:         MetricOutstandingRatio,
			Condition:      ConditionAbove,
			Threshold:      50,
			Severity:       SeverityWarning,
			Title:          "Large unpaid balance",
			Description:    "{{pct .Value}} of booked revenue is still unpaid.",
			Recommendation: "Send payment reminders for upcoming trips.",
		},
	}
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules читает правила из YAML вида `rules: [...]` и проверяет каждое.
func LoadRules(r io.Reader) ([]Rule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f rulesFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rules file is empty: %w", ErrInvalidRule)
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Rules))
	for i, rule := range f.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i+1, err)
		}
		if _, dup := seen[rule.Name]; dup {
			return nil, fmt.Errorf("rule %q is defined twice: %w", rule.Name, ErrInvalidRule)
		}
		seen[rule.Name] = struct{}{}
	}
	return f.Rules, nil
}

func LoadRulesFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is empty: %w", ErrInvalidRule)
	}
	if _, ok := knownMetrics[r.Metric]; !ok {
		return fmt.Errorf("%s: unknown metric %q: %w", r.Name, r.Metric, ErrInvalidRule)
	}
	if r.Condition != ConditionAbove && r.Condition != ConditionBelow {
		return fmt.Errorf("%s: unknown condition %q: %w", r.Name, r.Condition, ErrInvalidRule)
	}
	if r.Severity.Rank() == 0 {
		return fmt.Errorf("%s: unknown severity %q: %w", r.Name, r.Severity, ErrInvalidRule)
	}
	if r.Title == "" {
		return fmt.Errorf("%s: title is empty: %w", r.Name, ErrInvalidRule)
	}
	for _, text := range []string{r.Title, r.Description, r.Recommendation} {
		if _, err := template.New(r.Name).Funcs(templateFuncs).Parse(text); err != nil {
			return fmt.Errorf("%s: %v: %w", r.Name, err, ErrInvalidRule)
		}
	}
	return nil
}
