package detect

import (
	"fmt"
	"slices"

	"github.com/tinytelemetry/accesslens/internal/logparse"
	"github.com/tinytelemetry/accesslens/internal/model"
)

// Rule names, also used as anomaly ID prefixes.
const (
	RuleErrorStorm    = "frequent-5xx-errors"
	RuleBurst         = "high-frequency-requests"
	RuleBotAgent      = "suspicious-bot-agent"
	RuleSequential    = "sequential-crawling"
	RuleNotFound      = "excessive-404s"
	RuleSensitiveScan = "sensitive-resource-scan"
)

// Thresholds configures the rule pipeline.
type Thresholds struct {
	ErrorStorm          int   `mapstructure:"error-storm-threshold" validate:"gte=1"`
	Burst               int   `mapstructure:"burst-threshold" validate:"gte=1"`
	BotMinMatches       int   `mapstructure:"bot-min-matches" validate:"gte=1"`
	CrawlMinRecords     int   `mapstructure:"crawl-min-records" validate:"gte=1"`
	CrawlMinPairs       int   `mapstructure:"crawl-min-pairs" validate:"gte=1"`
	CrawlMaxStep        int64 `mapstructure:"crawl-max-step" validate:"gte=1"`
	NotFoundThreshold   int   `mapstructure:"not-found-threshold" validate:"gte=1"`
	SensitiveMinMatches int   `mapstructure:"sensitive-min-matches" validate:"gte=1"`
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorStorm:          model.DefaultErrorStormThreshold,
		Burst:               model.DefaultBurstThreshold,
		BotMinMatches:       model.DefaultBotMinMatches,
		CrawlMinRecords:     model.DefaultCrawlMinRecords,
		CrawlMinPairs:       model.DefaultCrawlMinPairs,
		CrawlMaxStep:        model.DefaultCrawlMaxStep,
		NotFoundThreshold:   model.DefaultNotFoundThreshold,
		SensitiveMinMatches: model.DefaultSensitiveMinMatches,
	}
}

// WithDefaults returns t with every zero field replaced by its stock
// value. Thresholds are positive, so zero always means unset.
func (t Thresholds) WithDefaults() Thresholds {
	def := DefaultThresholds()
	orInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	orInt(&t.ErrorStorm, def.ErrorStorm)
	orInt(&t.Burst, def.Burst)
	orInt(&t.BotMinMatches, def.BotMinMatches)
	orInt(&t.CrawlMinRecords, def.CrawlMinRecords)
	orInt(&t.CrawlMinPairs, def.CrawlMinPairs)
	orInt(&t.NotFoundThreshold, def.NotFoundThreshold)
	orInt(&t.SensitiveMinMatches, def.SensitiveMinMatches)
	if t.CrawlMaxStep == 0 {
		t.CrawlMaxStep = def.CrawlMaxStep
	}
	return t
}

// Rule is one step of the detection pipeline. Exactly one of Global and
// PerIP is set: Global sees the whole filtered set once, PerIP is called
// for every IP group.
type Rule struct {
	Name   string
	Global func(records []model.LogRecord, th Thresholds) (model.Anomaly, bool)
	PerIP  func(group IPGroup, th Thresholds) (model.Anomaly, bool)
}

// DefaultRules returns the pipeline in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleErrorStorm, Global: errorStorm},
		{Name: RuleBurst, PerIP: requestBurst},
		{Name: RuleBotAgent, PerIP: botAgent},
		{Name: RuleSequential, PerIP: sequentialCrawl},
		{Name: RuleNotFound, PerIP: excessiveNotFound},
		{Name: RuleSensitiveScan, PerIP: sensitiveScan},
	}
}

func anomalyID(rule, subject string) string {
	if subject == "" {
		return rule
	}
	return rule + "-" + subject
}

func newAnomaly(rule, subject, reason, note string, evidence []model.LogRecord) model.Anomaly {
	return model.Anomaly{
		ID:          anomalyID(rule, subject),
		Rule:        rule,
		Subject:     subject,
		Reason:      reason,
		Note:        note,
		RelatedLogs: evidence,
	}
}

func matching(records []model.LogRecord, keep func(model.LogRecord) bool) []model.LogRecord {
	var out []model.LogRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func errorStorm(records []model.LogRecord, th Thresholds) (model.Anomaly, bool) {
	errs := matching(records, func(r model.LogRecord) bool { return logparse.IsServerError(r.Status) })
	if len(errs) <= th.ErrorStorm {
		return model.Anomaly{}, false
	}
	note := fmt.Sprintf("%d responses with 5xx status in window (threshold %d)", len(errs), th.ErrorStorm)
	return newAnomaly(RuleErrorStorm, "", "Frequent server errors detected", note, errs), true
}

// floorDiv rounds toward negative infinity so pre-epoch timestamps still
// land in 60-second buckets.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func requestBurst(g IPGroup, th Thresholds) (model.Anomaly, bool) {
	perMinute := make(map[int64]int)
	maxCount := 0
	for _, r := range g.Records {
		minute := floorDiv(r.Timestamp, 60000)
		perMinute[minute]++
		if perMinute[minute] > maxCount {
			maxCount = perMinute[minute]
		}
	}
	if maxCount <= th.Burst {
		return model.Anomaly{}, false
	}
	note := fmt.Sprintf("%s made %d requests within one minute (threshold %d)", g.IP, maxCount, th.Burst)
	return newAnomaly(RuleBurst, g.IP, "High request rate from single IP", note, g.Records), true
}

func botAgent(g IPGroup, th Thresholds) (model.Anomaly, bool) {
	hits := matching(g.Records, func(r model.LogRecord) bool { return logparse.IsToolAgent(r.UserAgent) })
	if len(hits) == 0 || len(hits) < th.BotMinMatches {
		return model.Anomaly{}, false
	}
	note := fmt.Sprintf("%s sent %d requests with an automated client user agent such as %q", g.IP, len(hits), hits[0].UserAgent)
	return newAnomaly(RuleBotAgent, g.IP, "Automated client user agent", note, hits), true
}

func sequentialCrawl(g IPGroup, th Thresholds) (model.Anomaly, bool) {
	if len(g.Records) < th.CrawlMinRecords {
		return model.Anomaly{}, false
	}
	sorted := slices.Clone(g.Records)
	slices.SortStableFunc(sorted, func(a, b model.LogRecord) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})

	pairs := 0
	for i := 1; i < len(sorted); i++ {
		if logparse.IsCrawlStep(sorted[i-1].Request.Path, sorted[i].Request.Path, th.CrawlMaxStep) {
			pairs++
		}
	}
	if pairs < th.CrawlMinPairs {
		return model.Anomaly{}, false
	}
	note := fmt.Sprintf("%s requested %d sequential path pairs across %d requests (threshold %d)", g.IP, pairs, len(sorted), th.CrawlMinPairs)
	return newAnomaly(RuleSequential, g.IP, "Sequential crawling pattern", note, sorted), true
}

func excessiveNotFound(g IPGroup, th Thresholds) (model.Anomaly, bool) {
	misses := matching(g.Records, func(r model.LogRecord) bool { return r.Status == 404 })
	if len(misses) <= th.NotFoundThreshold {
		return model.Anomaly{}, false
	}
	note := fmt.Sprintf("%s received %d not-found responses (threshold %d)", g.IP, len(misses), th.NotFoundThreshold)
	return newAnomaly(RuleNotFound, g.IP, "Excessive not-found responses", note, misses), true
}

func sensitiveScan(g IPGroup, th Thresholds) (model.Anomaly, bool) {
	hits := matching(g.Records, func(r model.LogRecord) bool { return logparse.IsSensitivePath(r.Request.Path) })
	if len(hits) == 0 || len(hits) < th.SensitiveMinMatches {
		return model.Anomaly{}, false
	}
	note := fmt.Sprintf("%s requested %d sensitive resources, e.g. %s", g.IP, len(hits), hits[0].Request.Path)
	return newAnomaly(RuleSensitiveScan, g.IP, "Sensitive resource probing", note, hits), true
}
