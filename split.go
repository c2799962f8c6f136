package clump

import (
	"fmt"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/regress"
)

// SplitGrouping selects how SplitSamples regroups an unknown sample's
// replicate analyses into pseudo-samples.
type SplitGrouping string

const (
	// SplitBySession treats a sample's analyses from different sessions as
	// different samples.
	SplitBySession SplitGrouping = "by_session"
	// SplitByUID treats every analysis as its own sample.
	SplitByUID SplitGrouping = "by_uid"
)

// SplitSamples renames the analyses of the given unknown samples (all
// unknowns when none are listed) into per-session or per-analysis
// pseudo-samples, so that standardization fits each group its own excess
// value. Must be called before Standardize; UnsplitSamples merges the
// fitted values back afterwards.
func (d *Dataset) SplitSamples(grouping SplitGrouping, samples ...string) error {
	if d.stage >= stageStandardized {
		return fmt.Errorf("%w: samples must be split before standardization", errs.ErrStageOrder)
	}
	if d.splitGrouping != "" {
		return fmt.Errorf("%w: samples already split %s", errs.ErrStageOrder, d.splitGrouping)
	}
	switch grouping {
	case SplitBySession, SplitByUID:
	default:
		return fmt.Errorf("%w: unknown split grouping %q", errs.ErrMissingField, grouping)
	}

	if len(samples) == 0 {
		samples = d.Unknowns()
	}
	split := make(map[string]bool, len(samples))
	for _, name := range samples {
		smp, err := d.Sample(name)
		if err != nil {
			return err
		}
		if smp.Anchor {
			return fmt.Errorf("%w: anchor %q cannot be split", errs.ErrMissingField, name)
		}
		split[name] = true
	}

	for _, a := range d.analyses {
		if !split[a.Sample] {
			continue
		}
		key := a.Session
		if grouping == SplitByUID {
			key = a.UID
		}
		a.sampleOrig = a.Sample
		a.Sample = a.Sample + "__" + key
	}
	d.splitGrouping = grouping
	d.index()
	d.log.Info("split samples", "grouping", string(grouping), "samples", len(split))

	return nil
}

// UnsplitSamples reverses SplitSamples after a pooled standardization,
// merging each group of pseudo-samples back into its original sample.
// Groups split by session are averaged with inverse-variance weights,
// groups split by UID with equal weights; the merged error structure
// follows from the pooled fit covariance, so SampleCovar and the export
// matrices keep working on the restored names. After independent-sessions
// standardization use CombineSamples instead.
func (d *Dataset) UnsplitSamples() error {
	if d.stage < stageStandardized {
		return fmt.Errorf("%w: unsplitting requires a standardized dataset", errs.ErrStageOrder)
	}
	if d.splitGrouping == "" {
		return fmt.Errorf("%w: no split in effect", errs.ErrStageOrder)
	}
	if d.method != MethodPooled {
		return fmt.Errorf("%w: unsplitting requires the pooled method", errs.ErrStageOrder)
	}

	// Original name to sorted pseudo-sample names. Sample names are kept
	// sorted by index, so iterating them keeps the groups sorted too.
	groups := make(map[string][]string)
	for _, name := range d.sampleNames {
		smp := d.samples[name]
		orig := smp.analyses[0].sampleOrig
		if orig == "" {
			continue
		}
		groups[orig] = append(groups[orig], name)
	}

	merged := make(map[string][]mergedPart, len(groups))
	for orig, members := range groups {
		weights := make([]float64, len(members))
		wsum := 0.0
		for i, m := range members {
			w := 1.0
			if d.splitGrouping == SplitBySession {
				se := d.samples[m].SE
				if se <= 0 {
					return fmt.Errorf("%w: split sample %q reports no variance", errs.ErrRankDeficient, m)
				}
				w = 1 / (se * se)
			}
			weights[i] = w
			wsum += w
		}
		parts := make([]mergedPart, len(members))
		for i, m := range members {
			parts[i] = mergedPart{param: regress.DName(d.mass, m), weight: weights[i] / wsum}
		}
		merged[orig] = parts
	}

	for _, a := range d.analyses {
		if a.sampleOrig != "" {
			a.Sample, a.sampleOrig = a.sampleOrig, ""
		}
	}
	d.merged = merged
	d.splitGrouping = ""
	d.index()
	if err := d.consolidate(); err != nil {
		return err
	}
	d.log.Info("unsplit samples", "groups", len(groups))

	return nil
}

// mergedPart is one pseudo-sample's share of an unsplit sample: a fit
// parameter name and its normalized averaging weight.
type mergedPart struct {
	param  string
	weight float64
}

// pooledParts maps a sample onto its weighted fit parameters: a single unit
// weight normally, the merged split parts after UnsplitSamples.
func (d *Dataset) pooledParts(name string) []mergedPart {
	if parts, ok := d.merged[name]; ok {
		return parts
	}

	return []mergedPart{{param: regress.DName(d.mass, name), weight: 1}}
}

// pooledCovar propagates the pooled fit covariance onto two samples,
// weighting split parts where UnsplitSamples merged them.
func (d *Dataset) pooledCovar(s1, s2 string) (float64, error) {
	c := 0.0
	for _, p := range d.pooledParts(s1) {
		for _, q := range d.pooledParts(s2) {
			cov, err := d.fit.Covariance(p.param, q.param)
			if err != nil {
				return 0, err
			}
			c += p.weight * q.weight * cov
		}
	}

	return c, nil
}
