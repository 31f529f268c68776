package match

import (
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultThreshold is the historical fuzzy-match cutoff: a (keyword, segment)
// pair matches when its combined score is at least this value.
const DefaultThreshold = 85

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum combined score (0–100) for a fuzzy match.
// Default: [DefaultThreshold].
func WithThreshold(threshold int) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// WithRoleMap sets the speaker-label-to-role mapping used to attribute
// matches. Default: [DefaultRoleMap].
func WithRoleMap(roles RoleMap) Option {
	return func(m *Matcher) {
		m.roles = roles
	}
}

// WithParallelism sets the number of goroutines used for per-keyword matching
// work. Values below 2 keep the computation fully sequential. Results are
// reassembled in input order regardless, so the report is identical either
// way.
func WithParallelism(n int) Option {
	return func(m *Matcher) {
		m.parallelism = n
	}
}

// Matcher drives normalization and scoring across the (category → keyword) ×
// (segment) cross product. It is read-only after construction and safe for
// concurrent use.
type Matcher struct {
	threshold   int
	roles       RoleMap
	parallelism int
}

// New returns a [Matcher] configured with the supplied options. Defaults
// preserve the historical behaviour: threshold 85, Speaker_1 → Agent,
// Speaker_0 → Customer.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		threshold:   DefaultThreshold,
		roles:       DefaultRoleMap(),
		parallelism: 1,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// strategy is one matching mode: how to normalize each side and when a
// normalized (keyword, segment) pair counts as a hit. Both modes run through
// the same aggregation loop.
type strategy struct {
	normalize func(string) string
	matches   func(keywordNorm, segmentNorm string) bool
}

func (m *Matcher) fuzzyStrategy() strategy {
	return strategy{
		normalize: NormalizeForScoring,
		matches: func(k, s string) bool {
			return Score(k, s) >= m.threshold
		},
	}
}

func containmentStrategy() strategy {
	return strategy{
		normalize: NormalizeForContainment,
		matches: func(k, s string) bool {
			return k != "" && s != "" && strings.Contains(s, k)
		},
	}
}

// task is one unit of keyword work: the position of the keyword in the input
// set plus its pre-normalized form.
type task struct {
	cat, kw int
	norm    string
}

// Match runs the fuzzy strategy and returns the aggregated report.
//
// Every keyword that is non-blank after trimming appears exactly once in the
// output under its original category, in input order, even with zero matches.
// Blank keywords and categories with blank names are skipped silently.
// Matches whose speaker resolves to [RoleUnknown] contribute to neither
// surfaced role. Zero segments or an empty keyword set are not errors; they
// produce zero counts or an empty report respectively.
func (m *Matcher) Match(segments []Segment, set KeywordSet) Report {
	tasks, hits := m.run(segments, set, m.fuzzyStrategy())

	// Skeleton first: one entry per non-blank category, in input order.
	report := Report{}
	byCat := map[int]int{} // category index in set → index in report
	for ci, c := range set {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		report = append(report, CategoryMatches{Category: c.Name, Keywords: []KeywordMatches{}})
		byCat[ci] = len(report) - 1
	}

	for ti, t := range tasks {
		km := KeywordMatches{
			Keyword: set[t.cat].Keywords[t.kw],
			CountBySpeaker: CountBySpeaker{
				Agent:    RoleMatches{Evidence: []Evidence{}},
				Customer: RoleMatches{Evidence: []Evidence{}},
			},
		}
		for _, si := range hits[ti] {
			seg := segments[si]
			ev := Evidence{Text: seg.Text, Speaker: seg.Speaker}
			switch m.roles.Resolve(seg.Speaker) {
			case RoleAgent:
				km.CountBySpeaker.Agent.Count++
				km.CountBySpeaker.Agent.Evidence = append(km.CountBySpeaker.Agent.Evidence, ev)
			case RoleCustomer:
				km.CountBySpeaker.Customer.Count++
				km.CountBySpeaker.Customer.Evidence = append(km.CountBySpeaker.Customer.Evidence, ev)
			}
			// RoleUnknown: dropped from the fuzzy report.
		}
		ci := byCat[t.cat]
		report[ci].Keywords = append(report[ci].Keywords, km)
	}

	return report
}

// MatchContainment runs the containment strategy and returns one record per
// (category, keyword, segment) hit. Unlike the fuzzy report, unknown-role
// hits are surfaced, and there is no per-keyword aggregation: count is fixed
// at 1 per record.
func (m *Matcher) MatchContainment(segments []Segment, set KeywordSet) []ContainmentRecord {
	tasks, hits := m.run(segments, set, containmentStrategy())

	records := []ContainmentRecord{}
	for ti, t := range tasks {
		for _, si := range hits[ti] {
			seg := segments[si]
			records = append(records, ContainmentRecord{
				Category:     set[t.cat].Name,
				Keyword:      set[t.cat].Keywords[t.kw],
				Speaker:      m.roles.Resolve(seg.Speaker),
				SpeakerLabel: seg.Speaker,
				Count:        1,
				MatchedText:  seg.Text,
			})
		}
	}
	return records
}

// run executes the shared aggregation loop: it normalizes every segment once,
// builds the keyword task list (skipping blank categories and keywords), and
// collects per-task matching segment indexes. When parallelism is enabled the
// keyword tasks run concurrently but hits are written into a slot per task,
// so output order never depends on scheduling.
func (m *Matcher) run(segments []Segment, set KeywordSet, st strategy) ([]task, [][]int) {
	segNorms := make([]string, len(segments))
	for i, seg := range segments {
		segNorms[i] = st.normalize(seg.Text)
	}

	var tasks []task
	for ci, c := range set {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		for ki, kw := range c.Keywords {
			if strings.TrimSpace(kw) == "" {
				continue
			}
			tasks = append(tasks, task{cat: ci, kw: ki, norm: st.normalize(kw)})
		}
	}

	hits := make([][]int, len(tasks))
	scan := func(ti int) {
		for si, segNorm := range segNorms {
			if st.matches(tasks[ti].norm, segNorm) {
				hits[ti] = append(hits[ti], si)
			}
		}
	}

	if m.parallelism > 1 {
		var g errgroup.Group
		g.SetLimit(m.parallelism)
		for ti := range tasks {
			g.Go(func() error {
				scan(ti)
				return nil
			})
		}
		_ = g.Wait() // the workers never return errors
	} else {
		for ti := range tasks {
			scan(ti)
		}
	}

	return tasks, hits
}
