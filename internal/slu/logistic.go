package slu

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// logisticOptions configures the L1-regularised logistic regression fit.
type logisticOptions struct {
	// C is the inverse regularisation strength (sparsification).
	C float64
	// Tol is the convergence tolerance on parameter change.
	Tol float64
	// MaxIter bounds the proximal gradient iterations.
	MaxIter int
}

// fitLogisticL1 fits an L1-regularised logistic regression with automatic
// class weighting (each class weighted by n/n_c) using proximal gradient
// descent with backtracking. The intercept is not penalised.
func fitLogisticL1(m *sparseMatrix, y []int, opts logisticOptions) (intercept float64, coefs []float64, err error) {
	n := m.rows
	if n == 0 {
		return 0, nil, fmt.Errorf("no training rows")
	}
	if opts.C <= 0 {
		return 0, nil, fmt.Errorf("non-positive inverse regularisation %v", opts.C)
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-6
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 1000
	}
	lambda := 1 / opts.C

	// Automatic class weighting: n / n_c.
	var nPos int
	for _, label := range y {
		if label == 1 {
			nPos++
		}
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		return 0, nil, fmt.Errorf("single-class training set (pos=%d, neg=%d)", nPos, nNeg)
	}
	weight := [2]float64{float64(n) / float64(nNeg), float64(n) / float64(nPos)}

	coefs = make([]float64, m.cols)
	grad := make([]float64, m.cols)
	next := make([]float64, m.cols)
	resid := make([]float64, n)

	// smoothLoss computes the weighted log-loss and the residuals
	// w_i * (sigma(s_i) - y_i) used by the gradient.
	smoothLoss := func(w []float64, b float64) float64 {
		loss := 0.0
		for i := 0; i < n; i++ {
			s := m.RowDot(i, w) + b
			wi := weight[y[i]]
			// log(1 + exp(s)) - y*s, computed stably.
			var ll float64
			if s > 0 {
				ll = s + math.Log1p(math.Exp(-s))
			} else {
				ll = math.Log1p(math.Exp(s))
			}
			ll -= float64(y[i]) * s
			loss += wi * ll
			resid[i] = wi * (sigmoid(s) - float64(y[i]))
		}
		return loss
	}

	step := 1.0
	loss := smoothLoss(coefs, intercept)
	for iter := 0; iter < opts.MaxIter; iter++ {
		// grad = X^T resid; gradB = sum(resid).
		for j := range grad {
			grad[j] = 0
		}
		gradB := 0.0
		for i := 0; i < n; i++ {
			idxs, vals := m.Row(i)
			r := resid[i]
			gradB += r
			for k, j := range idxs {
				grad[j] += r * vals[k]
			}
		}

		// Backtracking proximal step.
		var nextB, nextLoss float64
		for {
			for j := range next {
				next[j] = softThreshold(coefs[j]-step*grad[j], step*lambda)
			}
			nextB = intercept - step*gradB
			nextLoss = smoothLoss(next, nextB)

			// Quadratic upper bound at the current point.
			diffSq := 0.0
			linear := 0.0
			for j := range next {
				d := next[j] - coefs[j]
				diffSq += d * d
				linear += d * grad[j]
			}
			db := nextB - intercept
			diffSq += db * db
			linear += db * gradB
			bound := loss + linear + diffSq/(2*step)
			if nextLoss <= bound+1e-12 {
				break
			}
			step /= 2
			if step < 1e-12 {
				return 0, nil, fmt.Errorf("line search failed to make progress")
			}
		}

		maxDelta := math.Abs(nextB - intercept)
		for j := range next {
			if d := math.Abs(next[j] - coefs[j]); d > maxDelta {
				maxDelta = d
			}
		}
		copy(coefs, next)
		intercept = nextB
		loss = nextLoss

		if maxDelta < opts.Tol {
			break
		}
	}
	return intercept, coefs, nil
}

func sigmoid(s float64) float64 {
	if s >= 0 {
		return 1 / (1 + math.Exp(-s))
	}
	e := math.Exp(s)
	return e / (1 + e)
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

// countNonzero counts non-zero coefficients.
func countNonzero(coefs []float64) int {
	n := 0
	for _, c := range coefs {
		if c != 0 {
			n++
		}
	}
	return n
}

// absSumInto accumulates |coefs| into acc for training diagnostics.
func absSumInto(acc, coefs []float64) {
	tmp := make([]float64, len(coefs))
	copy(tmp, coefs)
	for i := range tmp {
		tmp[i] = math.Abs(tmp[i])
	}
	floats.Add(acc, tmp)
}
