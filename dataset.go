package clump

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/internal/hash"
	"github.com/isolab/clump/internal/options"
	"github.com/isolab/clump/isotope"
	"github.com/isolab/clump/regress"
)

// defaultAcidAlpha is the 18O/16O fractionation of a 90 degree phosphoric
// acid reaction of calcite.
const defaultAcidAlpha = 1.008129

// Method selects the standardization strategy.
type Method string

const (
	// MethodPooled fits one global least-squares model spanning every
	// session and every unknown sample simultaneously.
	MethodPooled Method = "pooled"
	// MethodIndepSessions fits each session from its anchors alone and
	// averages per-analysis standardized values afterwards.
	MethodIndepSessions Method = "indep_sessions"
)

type stage int

const (
	stageRaw stage = iota
	stageWG
	stageCrunched
	stageStandardized
)

func (s stage) String() string {
	switch s {
	case stageRaw:
		return "raw"
	case stageWG:
		return "working-gas-assigned"
	case stageCrunched:
		return "crunched"
	case stageStandardized:
		return "standardized"
	default:
		return "unknown"
	}
}

type config struct {
	constants      isotope.Constants
	acidAlpha      float64
	nominalExcess  map[string]float64
	nominalD13C    map[string]float64
	nominalD18O    map[string]float64
	confidence     float64
	leveneRef      string
	defaultSession string
	d13cMethod     BulkMethod
	d18oMethod     BulkMethod
	logger         *slog.Logger
}

// Option configures a Dataset at construction time.
type Option = options.Option[*config]

// WithConstants overrides the oxygen-17 correction constants.
func WithConstants(c isotope.Constants) Option {
	return options.NoError(func(cfg *config) { cfg.constants = c })
}

// WithAcidFractionation sets the 18O/16O acid fractionation factor used when
// converting mineral to CO2 compositions.
func WithAcidFractionation(alpha float64) Option {
	return options.New(func(cfg *config) error {
		if alpha <= 0 {
			return fmt.Errorf("%w: acid fractionation factor must be positive", errs.ErrMissingField)
		}
		cfg.acidAlpha = alpha
		return nil
	})
}

// WithNominalExcess replaces the anchor table: samples present in the map
// are anchors with the given nominal excess values.
func WithNominalExcess(m map[string]float64) Option {
	return options.NoError(func(cfg *config) { cfg.nominalExcess = copyMap(m) })
}

// WithNominalD13C replaces the δ13C_VPDB table of the carbonate standards.
func WithNominalD13C(m map[string]float64) Option {
	return options.NoError(func(cfg *config) { cfg.nominalD13C = copyMap(m) })
}

// WithNominalD18O replaces the δ18O_VPDB table of the carbonate standards.
func WithNominalD18O(m map[string]float64) Option {
	return options.NoError(func(cfg *config) { cfg.nominalD18O = copyMap(m) })
}

// WithConfidenceLevel sets the confidence level of reported intervals,
// 0.95 by default.
func WithConfidenceLevel(level float64) Option {
	return options.New(func(cfg *config) error {
		if level <= 0 || level >= 1 {
			return fmt.Errorf("%w: confidence level %g out of (0, 1)", errs.ErrMissingField, level)
		}
		cfg.confidence = level
		return nil
	})
}

// WithLeveneReference sets the reference sample of the variance-homogeneity
// test, ETH-3 by default.
func WithLeveneReference(sample string) Option {
	return options.NoError(func(cfg *config) { cfg.leveneRef = sample })
}

// WithDefaultSession names the session assigned to records without one.
func WithDefaultSession(name string) Option {
	return options.NoError(func(cfg *config) { cfg.defaultSession = name })
}

// WithBulkStandardization sets the default per-session bulk standardization
// modes for δ13C and δ18O.
func WithBulkStandardization(d13c, d18o BulkMethod) Option {
	return options.New(func(cfg *config) error {
		for _, m := range []BulkMethod{d13c, d18o} {
			switch m {
			case BulkNone, BulkOnePoint, BulkTwoPoint:
			default:
				return fmt.Errorf("%w: unknown bulk standardization mode %q", errs.ErrMissingField, m)
			}
		}
		cfg.d13cMethod = d13c
		cfg.d18oMethod = d18o
		return nil
	})
}

// WithLogger sets the structured logger used for progress reporting.
// Without it the dataset stays silent.
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(cfg *config) { cfg.logger = l })
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// Dataset holds one batch of analyses and drives them through the
// correction and standardization pipeline.
type Dataset struct {
	mass string
	cfg  config
	log  *slog.Logger

	analyses []*Analysis

	sessionNames []string
	sessions     map[string]*Session

	sampleNames []string
	samples     map[string]*Sample

	stage  stage
	method Method

	// splitGrouping is the active SplitSamples regrouping, empty when none.
	splitGrouping SplitGrouping
	// merged maps samples restored by UnsplitSamples onto the weighted fit
	// parameters of their split parts.
	merged map[string][]mergedPart

	fit   *regress.Fit
	indep *regress.IndepFit

	// nf is the fit's degrees of freedom, tcrit the Student's t factor at
	// the configured confidence level.
	nf    int
	tcrit float64

	// Pooled repeatabilities across all sessions.
	repD13C, repD18O                     float64
	repExcessAll, repExcessA, repExcessU float64
}

// New creates a dataset for the given target mass ("47" or "48") from raw
// input records. Records are validated eagerly: a missing sample name,
// missing required delta values, or a duplicate UID is a fatal input error.
func New(mass string, records []Record, opts ...Option) (*Dataset, error) {
	if mass != "47" && mass != "48" {
		return nil, fmt.Errorf("%w: unsupported target mass %q", errs.ErrMissingField, mass)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no input records", errs.ErrMissingField)
	}

	cfg := config{
		constants:      isotope.Defaults(),
		acidAlpha:      defaultAcidAlpha,
		confidence:     0.95,
		leveneRef:      "ETH-3",
		defaultSession: "mySession",
		d13cMethod:     BulkTwoPoint,
		d18oMethod:     BulkTwoPoint,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	d := &Dataset{
		mass:     mass,
		cfg:      cfg,
		log:      cfg.logger.With("mass", mass),
		sessions: make(map[string]*Session),
		samples:  make(map[string]*Sample),
	}

	seen := make(map[string]int, len(records))
	for i, rec := range records {
		a, err := newAnalysis(i, rec, mass, cfg.defaultSession)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[a.UID]; dup {
			return nil, fmt.Errorf("%w: records %d and %d both carry UID %q", errs.ErrDuplicateUID, prev, i, a.UID)
		}
		seen[a.UID] = i
		d.analyses = append(d.analyses, a)
	}
	d.index()

	return d, nil
}

// index rebuilds the session and sample registries from d.analyses,
// preserving per-session drift flags and bulk modes already configured.
func (d *Dataset) index() {
	oldSessions := d.sessions
	d.sessions = make(map[string]*Session)
	d.sessionNames = d.sessionNames[:0]
	d.samples = make(map[string]*Sample)
	d.sampleNames = d.sampleNames[:0]

	for _, a := range d.analyses {
		s, ok := d.sessions[a.Session]
		if !ok {
			s = &Session{
				Name:       a.Session,
				D13CMethod: d.cfg.d13cMethod,
				D18OMethod: d.cfg.d18oMethod,
			}
			if old, had := oldSessions[a.Session]; had {
				s.ScramblingDrift = old.ScramblingDrift
				s.SlopeDrift = old.SlopeDrift
				s.OffsetDrift = old.OffsetDrift
				s.D13CMethod = old.D13CMethod
				s.D18OMethod = old.D18OMethod
				s.WGD13C, s.WGD18O, s.wgSet = old.WGD13C, old.WGD18O, old.wgSet
			}
			d.sessions[a.Session] = s
			d.sessionNames = append(d.sessionNames, a.Session)
		}
		s.analyses = append(s.analyses, a)

		smp, ok := d.samples[a.Sample]
		if !ok {
			smp = &Sample{Name: a.Sample}
			if nominal, anchor := d.cfg.nominalExcess[a.Sample]; anchor {
				smp.Anchor = true
				smp.Nominal = nominal
			}
			d.samples[a.Sample] = smp
			d.sampleNames = append(d.sampleNames, a.Sample)
		}
		smp.analyses = append(smp.analyses, a)
	}
	sort.Strings(d.sampleNames)
}

// Mass returns the dataset's target mass, "47" or "48".
func (d *Dataset) Mass() string { return d.mass }

// N returns the number of analyses.
func (d *Dataset) N() int { return len(d.analyses) }

// Analyses returns all analyses in input order.
func (d *Dataset) Analyses() []*Analysis { return d.analyses }

// Sessions returns the session names in input order.
func (d *Dataset) Sessions() []string {
	return append([]string(nil), d.sessionNames...)
}

// Session returns the named session.
func (d *Dataset) Session(name string) (*Session, error) {
	s, ok := d.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownSession, name)
	}

	return s, nil
}

// Samples returns all sample names in sorted order.
func (d *Dataset) Samples() []string {
	return append([]string(nil), d.sampleNames...)
}

// Sample returns the named sample.
func (d *Dataset) Sample(name string) (*Sample, error) {
	s, ok := d.samples[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownSample, name)
	}

	return s, nil
}

// Anchors returns the sorted names of anchor samples present in the
// dataset.
func (d *Dataset) Anchors() []string {
	var out []string
	for _, name := range d.sampleNames {
		if d.samples[name].Anchor {
			out = append(out, name)
		}
	}

	return out
}

// Unknowns returns the sorted names of unknown samples.
func (d *Dataset) Unknowns() []string {
	var out []string
	for _, name := range d.sampleNames {
		if !d.samples[name].Anchor {
			out = append(out, name)
		}
	}

	return out
}

// DF returns the standardization degrees of freedom. Zero before
// Standardize.
func (d *Dataset) DF() int { return d.nf }

// TCritical returns the Student's t factor at the configured confidence
// level and the fit's degrees of freedom. NaN before Standardize.
func (d *Dataset) TCritical() float64 { return d.tcrit }

// MethodUsed returns the standardization method applied, empty before
// Standardize.
func (d *Dataset) MethodUsed() Method { return d.method }

// SetDrift configures which of a session's standardization parameters may
// drift linearly in time. Must be called before Standardize.
func (d *Dataset) SetDrift(session string, scrambling, slope, offset bool) error {
	s, err := d.Session(session)
	if err != nil {
		return err
	}
	if d.stage >= stageStandardized {
		return fmt.Errorf("%w: cannot change drift flags after standardization", errs.ErrStageOrder)
	}
	s.ScramblingDrift, s.SlopeDrift, s.OffsetDrift = scrambling, slope, offset

	return nil
}

// SetBulkMethods configures a session's bulk standardization modes. Must be
// called before Crunch.
func (d *Dataset) SetBulkMethods(session string, d13c, d18o BulkMethod) error {
	s, err := d.Session(session)
	if err != nil {
		return err
	}
	if d.stage >= stageCrunched {
		return fmt.Errorf("%w: cannot change bulk standardization after crunching", errs.ErrStageOrder)
	}
	s.D13CMethod, s.D18OMethod = d13c, d18o

	return nil
}

// SetWorkingGas assigns an explicit working-gas bulk composition to a
// session. Sessions may mix explicit assignment with ResolveWorkingGases;
// each session needs one of the two before Crunch.
func (d *Dataset) SetWorkingGas(session string, d13CVPDB, d18OVSMOW float64) error {
	s, err := d.Session(session)
	if err != nil {
		return err
	}
	if d.stage >= stageCrunched {
		return fmt.Errorf("%w: working gas must be assigned before crunching", errs.ErrStageOrder)
	}
	s.WGD13C, s.WGD18O, s.wgSet = d13CVPDB, d18OVSMOW, true
	for _, a := range s.analyses {
		a.WGD13C, a.WGD18O = d13CVPDB, d18OVSMOW
	}
	d.advanceWG()

	return nil
}

// advanceWG moves the dataset into the working-gas-assigned stage once
// every session has a composition.
func (d *Dataset) advanceWG() {
	if d.stage != stageRaw {
		return
	}
	for _, name := range d.sessionNames {
		if !d.sessions[name].wgSet {
			return
		}
	}
	d.stage = stageWG
}

// Exclude removes analyses from the dataset before processing: any analysis
// whose UID appears in uids, and every analysis of any sample named in
// samples. Referencing an unknown UID or sample is a fatal input error.
func (d *Dataset) Exclude(uids, samples []string) error {
	if d.stage != stageRaw {
		return fmt.Errorf("%w: exclusions must be applied before working-gas assignment (stage is %s)", errs.ErrStageOrder, d.stage)
	}

	dropUID := make(map[string]bool, len(uids))
	for _, uid := range uids {
		if uid == "" {
			continue
		}
		dropUID[uid] = true
	}
	dropSample := make(map[string]bool, len(samples))
	for _, s := range samples {
		if s == "" {
			continue
		}
		if _, ok := d.samples[s]; !ok {
			return fmt.Errorf("%w: excluded sample %q not in dataset", errs.ErrUnknownSample, s)
		}
		dropSample[s] = true
	}

	matched := make(map[string]bool, len(dropUID))
	kept := d.analyses[:0]
	for _, a := range d.analyses {
		if dropUID[a.UID] {
			matched[a.UID] = true
			continue
		}
		if dropSample[a.Sample] {
			continue
		}
		kept = append(kept, a)
	}
	for uid := range dropUID {
		if !matched[uid] {
			return fmt.Errorf("%w: excluded UID %q not in dataset", errs.ErrUnknownSample, uid)
		}
	}
	if len(kept) == 0 {
		return fmt.Errorf("%w: exclusions leave no analyses", errs.ErrMissingField)
	}

	removed := len(d.analyses) - len(kept)
	d.analyses = kept
	d.index()
	d.log.Info("excluded analyses", "removed", removed, "remaining", len(d.analyses))

	return nil
}

// Fingerprint returns a deterministic digest of the dataset's input and
// derived values at its current stage. Identical inputs and configuration
// produce identical fingerprints, run to run.
func (d *Dataset) Fingerprint() uint64 {
	dg := hash.New()
	dg.WriteString(d.mass)
	dg.WriteString(d.stage.String())
	for _, a := range d.analyses {
		dg.WriteString(a.UID)
		dg.WriteString(a.Session)
		dg.WriteString(a.Sample)
		for _, v := range []float64{
			a.D45, a.D46, a.D47, a.D48, a.D49, a.D17O,
			a.D13CVPDB, a.D18OVSMOW, a.D47Raw, a.D48Raw, a.D49Raw, a.Excess,
		} {
			dg.WriteFloat(v)
		}
	}

	return dg.Sum64()
}
