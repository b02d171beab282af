package analytics

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"text/template"
	"time"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank — порядок важности: info < warning < critical. 0 — неизвестная важность.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast — важность не ниже other.
func (s Severity) AtLeast(other Severity) bool { return s.Rank() >= other.Rank() }

// Condition — когда срабатывает правило.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

func (c Condition) holds(value, threshold float64) bool {
	switch c {
	case ConditionAbove:
		return value > threshold
	case ConditionBelow:
		return value < threshold
	default:
		return false
	}
}

// Метрики, которые умеет считать CollectFacts.
const (
	MetricWeeklyBookingChange    = "weekly_booking_change"
	MetricWeeklyConversionChange = "weekly_conversion_change"
	MetricCancellationRate       = "cancellation_rate"
	MetricDestinationShareGrowth = "destination_share_growth"
	MetricOutstandingRatio       = "outstanding_ratio"
)

var knownMetrics = map[string]struct{}{
	MetricWeeklyBookingChange:    {},
	MetricWeeklyConversionChange: {},
	MetricCancellationRate:       {},
	MetricDestinationShareGrowth: {},
	MetricOutstandingRatio:       {},
}

// Rule — декларативное правило: метрика, условие, порог и шаблоны текстов.
// В шаблонах доступны .Subject, .Value, .Threshold, .Current, .Previous и функции pct, abs.
type Rule struct {
	Name           string    `yaml:"name"`
	Metric         string    `yaml:"metric"`
	Condition      Condition `yaml:"condition"`
	Threshold      float64   `yaml:"threshold"`
	Severity       Severity  `yaml:"severity"`
	Title          string    `yaml:"title"`
	Description    string    `yaml:"description"`
	Recommendation string    `yaml:"recommendation"`
}

// Fact — значение метрики. Subject пуст для метрик по всему набору.
type Fact struct {
	Metric   string  `json:"metric"`
	Subject  string  `json:"subject,omitempty"`
	Value    float64 `json:"value"`
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
}

type Insight struct {
	Rule           string   `json:"rule"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	Metric         string   `json:"metric"`
	Subject        string   `json:"subject,omitempty"`
	Value          float64  `json:"value"`
}

type templateData struct {
	Subject   string
	Value     float64
	Threshold float64
	Current   float64
	Previous  float64
}

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"abs": math.Abs,
}

// Insights применяет правила к фактам. Для одной пары метрика+subject остаётся
// только самый важный сработавший вывод. Результат: сначала самые важные.
func Insights(facts []Fact, rules []Rule) []Insight {
	type key struct{ metric, subject string }
	best := make(map[key]Insight)

	for _, rule := range rules {
		for _, f := range facts {
			if f.Metric != rule.Metric || !rule.Condition.holds(f.Value, rule.Threshold) {
				continue
			}
			in := rule.render(f)
			k := key{f.Metric, f.Subject}
			if prev, ok := best[k]; ok && prev.Severity.Rank() >= in.Severity.Rank() {
				continue
			}
			best[k] = in
		}
	}

	out := make([]Insight, 0, len(best))
	for _, in := range best {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		if out[i].Rule != out[j].Rule {
			return out[i].Rule < out[j].Rule
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

func (r Rule) render(f Fact) Insight {
	data := templateData{
		Subject:   f.Subject,
		Value:     f.Value,
		Threshold: r.Threshold,
		Current:   f.Current,
		Previous:  f.Previous,
	}
	return Insight{
		Rule:           r.Name,
		Severity:       r.Severity,
		Title:          execute(r.Title, data),
		Description:    execute(r.Description, data),
		Recommendation: execute(r.Recommendation, data),
		Metric:         f.Metric,
		Subject:        f.Subject,
		Value:          f.Value,
	}
}

// execute возвращает исходный текст, если шаблон не разбирается (LoadRules такое не пропустит).
func execute(text string, data templateData) string {
	tpl, err := template.New("").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return text
	}
	return buf.String()
}

// Окно, по которому считаются недельные метрики.
const factsPeriod = 7 * 24 * time.Hour

// CollectFacts считает метрики для правил: последние 7 дней до at против 7 дней перед ними.
func CollectFacts(records []model.BookingRecord, at time.Time) []Fact {
	cur := Window{Start: at.Add(-factsPeriod), End: at}
	prev := cur.Previous()
	curRecs := cur.Filter(records)
	prevRecs := prev.Filter(records)

	var facts []Fact

	facts = append(facts, Fact{
		Metric:   MetricWeeklyBookingChange,
		Value:    ChangePercent(float64(len(curRecs)), float64(len(prevRecs))),
		Current:  float64(len(curRecs)),
		Previous: float64(len(prevRecs)),
	})

	curSum, prevSum := Summarize(curRecs), Summarize(prevRecs)
	if curSum.TotalBookings > 0 && prevSum.TotalBookings > 0 {
		facts = append(facts, Fact{
			Metric:   MetricWeeklyConversionChange,
			Value:    round2(curSum.ConversionRate - prevSum.ConversionRate),
			Current:  curSum.ConversionRate,
			Previous: prevSum.ConversionRate,
		})
	}

	if curSum.TotalBookings > 0 {
		rate := percent(curSum.CancelledCount, curSum.TotalBookings)
		facts = append(facts, Fact{
			Metric:  MetricCancellationRate,
			Value:   rate,
			Current: rate,
		})
	}

	prevShares := make(map[string]float64)
	for _, s := range ByDestination(prevRecs) {
		prevShares[s.Key] = s.SharePercent
	}
	for _, s := range ByDestination(curRecs) {
		p, ok := prevShares[s.Key]
		if !ok || p == 0 || s.Key == UnknownKey {
			continue
		}
		facts = append(facts, Fact{
			Metric:   MetricDestinationShareGrowth,
			Subject:  s.Key,
			Value:    ChangePercent(s.SharePercent, p),
			Current:  s.SharePercent,
			Previous: p,
		})
	}

	var total, outstanding float64
	for _, rec := range records {
		if rec.Status == model.BookingStatusCancelled {
			continue
		}
		total += rec.TotalAmount
		outstanding += rec.OutstandingAmount()
	}
	if total > 0 {
		ratio := round2(outstanding * 100 / total)
		facts = append(facts, Fact{
			Metric:  MetricOutstandingRatio,
			Value:   ratio,
			Current: round2(outstanding),
		})
	}

	sort.SliceStable(facts, func(i, j int) bool {
		if facts[i].Metric != facts[j].Metric {
			return facts[i].Metric < facts[j].Metric
		}
		return facts[i].Subject < facts[j].Subject
	})
	return facts
}
