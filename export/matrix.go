package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/isolab/clump/errs"
	"github.com/isolab/clump/internal/options"
)

// Matrix holds the consolidated excess values of a set of samples together
// with their standard errors and full covariance, in one shared sample
// order.
type Matrix struct {
	// Mass is the isotopologue mass tag, e.g. "47".
	Mass string
	// Samples lists sample names; it fixes the row and column order of
	// every other field.
	Samples []string
	// Values holds the excess value of each sample.
	Values []float64
	// SEs holds the standard error of each value.
	SEs []float64
	// Covar is the covariance matrix between the values.
	Covar *mat.Dense
}

// Validate checks the internal consistency of the matrix dimensions.
func (m *Matrix) Validate() error {
	n := len(m.Samples)
	if n == 0 {
		return fmt.Errorf("%w: matrix has no samples", errs.ErrMissingField)
	}
	if len(m.Values) != n || len(m.SEs) != n {
		return fmt.Errorf("%w: %d samples with %d values and %d errors", errs.ErrMissingField, n, len(m.Values), len(m.SEs))
	}
	r, c := m.Covar.Dims()
	if r != n || c != n {
		return fmt.Errorf("%w: %dx%d covariance for %d samples", errs.ErrMissingField, r, c, n)
	}

	return nil
}

// Correl returns the correlation matrix derived from Covar, with unit
// diagonal. Entries involving a zero standard error are zero off-diagonal.
func (m *Matrix) Correl() *mat.Dense {
	n := len(m.Samples)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				out.Set(i, j, 1)
				continue
			}
			den := m.SEs[i] * m.SEs[j]
			if den == 0 {
				continue
			}
			out.Set(i, j, m.Covar.At(i, j)/den)
		}
	}

	return out
}

// CSVLayout controls the numeric formatting of exported tables.
type CSVLayout struct {
	// ValuePrecision is the number of decimals for values and standard
	// errors.
	ValuePrecision int
	// CorrelPrecision is the number of decimals for correlation factors.
	CorrelPrecision int
}

// WithValuePrecision sets the number of decimals used for excess values and
// their standard errors.
func WithValuePrecision(p int) options.Option[*CSVLayout] {
	return options.New(func(l *CSVLayout) error {
		if p < 1 || p > 17 {
			return fmt.Errorf("%w: value precision %d out of range", errs.ErrMissingField, p)
		}
		l.ValuePrecision = p
		return nil
	})
}

// WithCorrelPrecision sets the number of decimals used for correlation
// factors.
func WithCorrelPrecision(p int) options.Option[*CSVLayout] {
	return options.New(func(l *CSVLayout) error {
		if p < 1 || p > 17 {
			return fmt.Errorf("%w: correlation precision %d out of range", errs.ErrMissingField, p)
		}
		l.CorrelPrecision = p
		return nil
	})
}

// CSV renders the matrix as a CSV table: one row per sample carrying its
// excess value, standard error and the correlation factors against every
// sample, in Samples order. The header names the correlation columns after
// the samples so the table parses back without external context.
func (m *Matrix) CSV(opts ...options.Option[*CSVLayout]) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	layout := &CSVLayout{ValuePrecision: 4, CorrelPrecision: 4}
	if err := options.Apply(layout, opts...); err != nil {
		return nil, err
	}

	correl := m.Correl()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, 3+len(m.Samples))
	header = append(header, "Sample", "D"+m.Mass, "D"+m.Mass+"_SE")
	header = append(header, m.Samples...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	row := make([]string, 0, 3+len(m.Samples))
	for i, sample := range m.Samples {
		row = row[:0]
		row = append(row,
			sample,
			strconv.FormatFloat(m.Values[i], 'f', layout.ValuePrecision, 64),
			strconv.FormatFloat(m.SEs[i], 'f', layout.ValuePrecision, 64),
		)
		for j := range m.Samples {
			row = append(row, strconv.FormatFloat(correl.At(i, j), 'f', layout.CorrelPrecision, 64))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()

	return buf.Bytes(), w.Error()
}

// CovarCSV renders the raw covariance matrix: an empty-cornered header of
// sample names, then one row per sample in scientific notation.
func (m *Matrix) CovarCSV() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{""}, m.Samples...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for i, sample := range m.Samples {
		row := make([]string, 0, 1+len(m.Samples))
		row = append(row, sample)
		for j := range m.Samples {
			row = append(row, strconv.FormatFloat(m.Covar.At(i, j), 'e', 8, 64))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()

	return buf.Bytes(), w.Error()
}

// Encode renders the matrix as CSV and compresses the payload with the
// requested algorithm.
func (m *Matrix) Encode(comp Compression, opts ...options.Option[*CSVLayout]) ([]byte, error) {
	data, err := m.CSV(opts...)
	if err != nil {
		return nil, err
	}
	codec, err := GetCodec(comp)
	if err != nil {
		return nil, err
	}

	return codec.Compress(data)
}

// Decode decompresses and parses a payload produced by Encode. The
// covariance matrix is reconstructed from the correlation factors and
// standard errors, so round-tripped covariances carry the table's formatting
// precision.
func Decode(data []byte, comp Compression) (*Matrix, error) {
	codec, err := GetCodec(comp)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(data)
	if err != nil {
		return nil, err
	}

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: matrix table has no data rows", errs.ErrMissingField)
	}
	header := records[0]
	if len(header) < 4 || header[0] != "Sample" || !strings.HasPrefix(header[1], "D") {
		return nil, fmt.Errorf("%w: unrecognized matrix table header", errs.ErrMissingField)
	}

	m := &Matrix{
		Mass:    strings.TrimPrefix(header[1], "D"),
		Samples: append([]string(nil), header[3:]...),
	}
	n := len(m.Samples)
	if len(records)-1 != n {
		return nil, fmt.Errorf("%w: %d data rows for %d samples", errs.ErrMissingField, len(records)-1, n)
	}

	m.Values = make([]float64, n)
	m.SEs = make([]float64, n)
	correl := mat.NewDense(n, n, nil)
	for i, rec := range records[1:] {
		if len(rec) != 3+n {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", errs.ErrMissingField, i+1, len(rec), 3+n)
		}
		if rec[0] != m.Samples[i] {
			return nil, fmt.Errorf("%w: row %d names sample %q, header says %q", errs.ErrMissingField, i+1, rec[0], m.Samples[i])
		}
		if m.Values[i], err = strconv.ParseFloat(rec[1], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if m.SEs[i], err = strconv.ParseFloat(rec[2], 64); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		for j := 0; j < n; j++ {
			v, err := strconv.ParseFloat(rec[3+j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			correl.Set(i, j, v)
		}
	}

	m.Covar = mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				m.Covar.Set(i, j, m.SEs[i]*m.SEs[i])
				continue
			}
			m.Covar.Set(i, j, correl.At(i, j)*m.SEs[i]*m.SEs[j])
		}
	}
	if math.IsNaN(mat.Sum(m.Covar)) {
		return nil, fmt.Errorf("%w: matrix table contains non-finite entries", errs.ErrMissingField)
	}

	return m, nil
}
