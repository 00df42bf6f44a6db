// Package fit estimates one unpenalized logistic regression per expertise
// shape, predicting answer preference (upvoted or accepted) from the
// extracted answer features.
package fit

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/empirical-se/expertise-cli/internal/config"
	"github.com/empirical-se/expertise-cli/internal/model"
)

// FeatureNames lists the model terms in the fixed reporting order.
var FeatureNames = []string{"length_long", "length_summary", "has_code", "has_image", "has_ref"}

// Coefficient is one fitted model term.
type Coefficient struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	StdErr float64 `json:"std_err"`
	P      float64 `json:"p"`
	Stars  string  `json:"stars"`
}

// Result is the outcome of fitting one shape's regression. A shape that
// cannot be fit still produces a Result with Converged=false and a Reason;
// non-convergence is reported, never raised.
type Result struct {
	Shape        model.Shape   `json:"shape"`
	Observations int           `json:"observations"`
	Converged    bool          `json:"converged"`
	Reason       string        `json:"reason,omitempty"`
	Iterations   int           `json:"iterations"`
	Intercept    Coefficient   `json:"intercept"`
	Coefficients []Coefficient `json:"coefficients"`
}

// Rows flattens a result for persistence.
func (r Result) Rows() []model.CoefficientRow {
	rows := make([]model.CoefficientRow, 0, len(r.Coefficients))
	for _, c := range r.Coefficients {
		rows = append(rows, model.CoefficientRow{
			Shape:     r.Shape,
			Feature:   c.Name,
			Value:     c.Value,
			StdErr:    c.StdErr,
			P:         c.P,
			Stars:     c.Stars,
			Converged: r.Converged,
		})
	}
	return rows
}

// FitAll fits one regression per shape. The per-shape datasets are
// disjoint, so each fit runs in its own goroutine; results come back in
// the fixed shape order regardless.
func FitAll(ctx context.Context, byShape map[model.Shape][]model.AnswerFeatures, cfg config.FitConfig) ([]Result, error) {
	results := make([]Result, len(model.Shapes))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range model.Shapes {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Fit(s, byShape[s], cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Fit runs the regression for a single shape.
func Fit(s model.Shape, obs []model.AnswerFeatures, cfg config.FitConfig) Result {
	res := Result{Shape: s, Observations: len(obs)}

	if len(obs) < cfg.MinObservations {
		res.Reason = fmt.Sprintf("insufficient observations (%d < %d)", len(obs), cfg.MinObservations)
		res.Coefficients = placeholderCoefficients()
		return res
	}

	x, y := designMatrix(obs)
	beta, info, iterations, err := irls(x, y, cfg)
	res.Iterations = iterations
	if err != nil {
		zap.L().Warn("fit did not converge",
			zap.String("shape", s.String()),
			zap.Int("observations", len(obs)),
			zap.Error(err),
		)
		res.Reason = err.Error()
		res.Coefficients = placeholderCoefficients()
		return res
	}

	var cov mat.Dense
	if err := cov.Inverse(info); err != nil {
		res.Reason = fmt.Sprintf("information matrix not invertible: %v", err)
		res.Coefficients = placeholderCoefficients()
		return res
	}

	res.Converged = true
	res.Intercept = waldCoefficient("intercept", beta.AtVec(0), &cov, 0)
	res.Coefficients = make([]Coefficient, len(FeatureNames))
	for j, name := range FeatureNames {
		res.Coefficients[j] = waldCoefficient(name, beta.AtVec(j+1), &cov, j+1)
	}
	return res
}

// designMatrix builds the n x 6 design matrix [1, Long, Summary, Code,
// Image, Reference] and the binary target vector. Short and Medium form
// the length baseline.
func designMatrix(obs []model.AnswerFeatures) (*mat.Dense, *mat.VecDense) {
	n := len(obs)
	p := len(FeatureNames) + 1

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, o := range obs {
		x.Set(i, 0, 1)
		x.Set(i, 1, indicator(o.Length == model.LengthLong))
		x.Set(i, 2, indicator(o.Length == model.LengthSummary))
		x.Set(i, 3, indicator(o.HasCode))
		x.Set(i, 4, indicator(o.HasImage))
		x.Set(i, 5, indicator(o.HasRef))
		y.SetVec(i, indicator(o.Preferred))
	}
	return x, y
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// irls runs iteratively reweighted least squares (Newton-Raphson on the
// log-likelihood). Returns the coefficient vector, the observed
// information matrix X'WX at the solution, and the iteration count.
func irls(x *mat.Dense, y *mat.VecDense, cfg config.FitConfig) (*mat.VecDense, *mat.Dense, int, error) {
	n, p := x.Dims()

	beta := mat.NewVecDense(p, nil)
	eta := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	wx := mat.NewDense(n, p, nil)
	info := mat.NewDense(p, p, nil)
	grad := mat.NewVecDense(p, nil)

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		eta.MulVec(x, beta)

		for i := 0; i < n; i++ {
			mu := sigmoid(eta.AtVec(i))
			w := mu * (1 - mu)
			resid.SetVec(i, y.AtVec(i)-mu)
			for j := 0; j < p; j++ {
				wx.Set(i, j, w*x.At(i, j))
			}
		}

		info.Mul(x.T(), wx)
		grad.MulVec(x.T(), resid)

		var delta mat.VecDense
		if err := delta.SolveVec(info, grad); err != nil {
			return nil, nil, iter, fmt.Errorf("singular information matrix: %v", err)
		}

		beta.AddVec(beta, &delta)

		if maxAbs(&delta) < cfg.Tolerance {
			return beta, info, iter, nil
		}
	}

	return nil, nil, cfg.MaxIterations, fmt.Errorf("no convergence after %d iterations", cfg.MaxIterations)
}

func sigmoid(v float64) float64 {
	// Clamp so saturated fits cannot produce zero weights and NaNs.
	mu := 1 / (1 + math.Exp(-v))
	const eps = 1e-10
	return math.Min(math.Max(mu, eps), 1-eps)
}

func maxAbs(v *mat.VecDense) float64 {
	m := 0.0
	for i := 0; i < v.Len(); i++ {
		if a := math.Abs(v.AtVec(i)); a > m {
			m = a
		}
	}
	return m
}

// waldCoefficient computes the standard error from the inverse information
// matrix and the two-sided Wald p-value.
func waldCoefficient(name string, value float64, cov *mat.Dense, j int) Coefficient {
	se := math.Sqrt(cov.At(j, j))
	z := value / se
	p := 2 * distuv.UnitNormal.CDF(-math.Abs(z))

	return Coefficient{Name: name, Value: value, StdErr: se, P: p, Stars: starsFor(p)}
}

// starsFor maps a p-value to the three fixed significance bands.
func starsFor(p float64) string {
	switch {
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return ""
	}
}

func placeholderCoefficients() []Coefficient {
	coefs := make([]Coefficient, len(FeatureNames))
	for j, name := range FeatureNames {
		coefs[j] = Coefficient{Name: name, P: 1}
	}
	return coefs
}
