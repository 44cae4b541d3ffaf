package hbl

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//LossFunc supplies the per-row derivatives the boosting driver turns into
//gradient and hessian vectors. LossDer1 is strictly the first derivative of
//the loss with respect to the raw score and LossDer2 strictly the second;
//losses_test.go checks both against numeric differentiation.
type LossFunc interface {
	Name() string
	LossValue(target, score float64) float64
	LossDer1(target, score float64) float64
	LossDer2(target, score float64) float64
	//Metric reports the tracked quality measure of raw scores against targets
	//(RMSE for regression, logloss for classification).
	Metric(target *mat.Dense, score []float64) float64
}

//GradHess fills the gradient and hessian vectors for the current raw scores.
//Both slices must have one entry per row.
func GradHess(loss LossFunc, target *mat.Dense, score, grad, hess []float64) error {
	h := Height(target)
	if len(score) != h || len(grad) != h || len(hess) != h {
		return invalidInputf("score/grad/hess lengths %d/%d/%d for %d rows", len(score), len(grad), len(hess), h)
	}
	for i := 0; i < h; i++ {
		y := target.At(i, 0)
		grad[i] = loss.LossDer1(y, score[i])
		hess[i] = loss.LossDer2(y, score[i])
	}
	return nil
}

//MseLoss is squared error on the raw score.
type MseLoss struct{}

func (MseLoss) Name() string { return "mse" }

func (MseLoss) LossValue(target, score float64) float64 {
	d := score - target
	return 0.5 * d * d
}

func (MseLoss) LossDer1(target, score float64) float64 { return score - target }

func (MseLoss) LossDer2(target, score float64) float64 { return 1.0 }

func (MseLoss) Metric(target *mat.Dense, score []float64) float64 {
	return Rmse(target, score)
}

//LogLoss is binary cross entropy on a raw logit score.
type LogLoss struct{}

func (LogLoss) Name() string { return "logloss" }

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func (LogLoss) LossValue(target, score float64) float64 {
	p := sigmoid(score)
	return -(target*math.Log(p) + (1.0-target)*math.Log(1.0-p))
}

func (LogLoss) LossDer1(target, score float64) float64 {
	return sigmoid(score) - target
}

func (LogLoss) LossDer2(target, score float64) float64 {
	p := sigmoid(score)
	return p * (1.0 - p)
}

func (LogLoss) Metric(target *mat.Dense, score []float64) float64 {
	return Logloss(target, score)
}

//Rmse is the root mean squared error of raw scores against targets.
func Rmse(target *mat.Dense, score []float64) float64 {
	h := Height(target)
	sum := 0.0
	for i := 0; i < h; i++ {
		d := score[i] - target.At(i, 0)
		sum += d * d
	}
	return math.Sqrt(sum / float64(h))
}

//Logloss converts raw scores through a sigmoid and reports mean binary cross
//entropy, with probabilities clamped away from 0 and 1.
func Logloss(target *mat.Dense, score []float64) float64 {
	const eps = 1e-15
	h := Height(target)
	losses := make([]float64, h)
	for i := 0; i < h; i++ {
		p := sigmoid(score[i])
		if p < eps {
			p = eps
		}
		if p > 1.0-eps {
			p = 1.0 - eps
		}
		y := target.At(i, 0)
		losses[i] = -(y*math.Log(p) + (1.0-y)*math.Log(1.0-p))
	}
	return floats.Sum(losses) / float64(h)
}
