package evaluation

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/metrics"
	"github.com/banshee-data/interactive.eval/internal/report"
)

// Summary condenses a session into its metric-over-time curve.
type Summary struct {
	SessionID         string            `json:"session_key,omitempty"`
	AUC               float64           `json:"auc"`
	MetricAtThreshold MetricAtThreshold `json:"metric_at_threshold"`
	Curve             report.Curve      `json:"curve"`
}

// MetricAtThreshold is the curve value at a fixed amount of time.
type MetricAtThreshold struct {
	// Threshold is in seconds.
	Threshold float64 `json:"threshold"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
}

// Summarizer turns report rows into a Summary. Samples lists every sample
// the session was expected to cover; rows of other samples are ignored and
// missing interactions are filled in.
type Summarizer struct {
	Samples         []Sample
	MaxTime         *time.Duration
	MaxInteractions *int
	Metric          metrics.Metric
	TimeThreshold   time.Duration
}

type sampleKey struct {
	sequence string
	idx      int
}

type entryKey struct {
	interaction int
	sample      sampleKey
	object      int
}

// score holds per-object means of one interaction.
type score struct {
	jaccard, contour, jAndF, timing float64
}

// Summarize computes the curve, its normalised area and its value at the
// time threshold.
func (z *Summarizer) Summarize(rows []report.Row) (*Summary, error) {
	if len(z.Samples) == 0 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "no samples to summarise")
	}
	if _, err := metrics.ParseMetric(string(z.Metric)); err != nil {
		return nil, err
	}

	entries, maxSeen, maxTiming := groupRows(rows)
	maxI := maxSeen
	if z.MaxInteractions != nil {
		maxI = *z.MaxInteractions
	}
	if maxI < 1 {
		maxI = 1
	}
	full := z.reconstruct(entries, maxI)

	// Interaction 0 is the origin of the curve.
	times := make([]float64, maxI+1)
	values := make([]float64, maxI+1)
	for it := 1; it <= maxI; it++ {
		var vals, sampleTimes []float64
		for _, smp := range z.Samples {
			key := sampleKey{smp.Sequence, smp.ScribbleIdx}
			var objTimes []float64
			for k := 1; k <= smp.NumObjects; k++ {
				sc := full[entryKey{it, key, k}]
				vals = append(vals, z.pick(sc))
				objTimes = append(objTimes, sc.timing)
			}
			sampleTimes = append(sampleTimes, stat.Mean(objTimes, nil))
		}
		values[it] = stat.Mean(vals, nil)
		times[it] = times[it-1] + stat.Mean(sampleTimes, nil)
	}

	var timeout float64
	if z.MaxTime != nil {
		timeout = z.avgObjects() * z.MaxTime.Seconds()
	} else {
		timeout = float64(maxI) * maxTiming
	}
	// The curve must stay sorted in time.
	timeout = max(timeout, times[maxI])
	times = append(times, timeout)
	values = append(values, values[maxI])

	th := z.TimeThreshold.Seconds()
	sum := &Summary{
		MetricAtThreshold: MetricAtThreshold{
			Threshold: th,
			Metric:    string(z.Metric),
			Value:     interp(th, times, values),
		},
		Curve: report.Curve{Metric: string(z.Metric), Time: times, Values: values},
	}
	if end := floats.Max(times); end > 0 {
		sum.AUC = integrate.Trapezoidal(times, values) / end
	}
	return sum, nil
}

func (z *Summarizer) pick(sc score) float64 {
	switch z.Metric {
	case metrics.J:
		return sc.jaccard
	case metrics.F:
		return sc.contour
	default:
		return sc.jAndF
	}
}

func (z *Summarizer) avgObjects() float64 {
	seen := map[string]bool{}
	var objects []float64
	for _, smp := range z.Samples {
		if !seen[smp.Sequence] {
			seen[smp.Sequence] = true
			objects = append(objects, float64(smp.NumObjects))
		}
	}
	return stat.Mean(objects, nil)
}

// groupRows averages the frames of every (interaction, sample, object) and
// returns the highest interaction and the highest per-object timing seen.
func groupRows(rows []report.Row) (map[entryKey]score, int, float64) {
	sums := map[entryKey]score{}
	counts := map[entryKey]float64{}
	for _, r := range rows {
		k := entryKey{r.Interaction, sampleKey{r.Sequence, r.ScribbleIdx}, r.ObjectID}
		s := sums[k]
		s.jaccard += r.Jaccard
		s.contour += r.Contour
		s.jAndF += r.JAndF
		s.timing += r.Timing
		sums[k] = s
		counts[k]++
	}
	var (
		maxI      int
		maxTiming float64
	)
	for k, s := range sums {
		n := counts[k]
		s = score{s.jaccard / n, s.contour / n, s.jAndF / n, s.timing / n}
		sums[k] = s
		maxI = max(maxI, k.interaction)
		maxTiming = max(maxTiming, s.timing)
	}
	return sums, maxI, maxTiming
}

// reconstruct returns an entry for every interaction, sample and object up
// to maxI. When any object of an interaction is missing the whole
// interaction repeats the previous scores at zero cost.
func (z *Summarizer) reconstruct(entries map[entryKey]score, maxI int) map[entryKey]score {
	full := make(map[entryKey]score, maxI*len(z.Samples))
	for _, smp := range z.Samples {
		key := sampleKey{smp.Sequence, smp.ScribbleIdx}
		prev := make([]score, smp.NumObjects)
		for it := 1; it <= maxI; it++ {
			complete := true
			cur := make([]score, smp.NumObjects)
			for k := range cur {
				sc, ok := entries[entryKey{it, key, k + 1}]
				if !ok {
					complete = false
					break
				}
				cur[k] = sc
			}
			if !complete {
				for k := range prev {
					prev[k].timing = 0
				}
				cur = prev
			} else {
				prev = cur
			}
			for k, sc := range cur {
				full[entryKey{it, key, k + 1}] = sc
			}
		}
	}
	return full
}

// interp evaluates the piecewise linear function through (xp, fp) at x,
// clamping outside the sampled range. xp must be non-decreasing.
func interp(x float64, xp, fp []float64) float64 {
	n := len(xp)
	if x <= xp[0] {
		return fp[0]
	}
	if x >= xp[n-1] {
		return fp[n-1]
	}
	j := 0
	for j+1 < n && xp[j+1] <= x {
		j++
	}
	t := (x - xp[j]) / (xp[j+1] - xp[j])
	return fp[j] + t*(fp[j+1]-fp[j])
}
