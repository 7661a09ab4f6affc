package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NewServiceTime returns the log-normal distribution of the handling time at a task
// node, given the mean and standard deviation of the handling time itself. Samples
// are drawn from src. A non-positive mean yields a distribution that always
// returns 0.
func NewServiceTime(mean, std float64, src rand.Source) distuv.LogNormal {
	if mean <= 0 {
		return distuv.LogNormal{Mu: math.Inf(-1), Src: src}
	}
	if std < 0 {
		std = 0
	}

	// E[X] = exp(μ + σ²/2)
	// Var[X] = exp(2μ + σ²)(exp(σ²) - 1)
	sigma2 := math.Log(1 + std*std/(mean*mean))
	return distuv.LogNormal{
		Mu:    math.Log(mean) - sigma2/2,
		Sigma: math.Sqrt(sigma2),
		Src:   src,
	}
}
