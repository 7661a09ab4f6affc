package sim

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceTime_Moments(t *testing.T) {
	d := NewServiceTime(4, 1, nil)

	assert.InDelta(t, 4, d.Mean(), 1e-9)
	assert.Less(t, d.Median(), d.Mean(), "log-normal median lies below the mean")
	assert.InDelta(t, d.Median(), d.Quantile(0.5), 1e-9)
	assert.Less(t, d.Quantile(0.1), d.Quantile(0.9))
	assert.InDelta(t, d.Median()*math.Exp(1.6449*d.Sigma), d.Quantile(0.95), 1e-3)
}

func TestServiceTime_ZeroMean(t *testing.T) {
	d := NewServiceTime(0, 1, rand.NewPCG(1, 1))
	for i := 0; i < 10; i++ {
		assert.Equal(t, 0.0, d.Rand())
	}
	assert.Equal(t, 0.0, d.Mean())
}

func TestServiceTime_WithoutVariation(t *testing.T) {
	d := NewServiceTime(2, 0, rand.NewPCG(1, 1))
	assert.InDelta(t, 2, d.Rand(), 1e-9)

	neg := NewServiceTime(2, -1, nil)
	assert.Equal(t, d.Mu, neg.Mu)
	assert.Equal(t, d.Sigma, neg.Sigma)
}

func TestServiceTime_SampleMean(t *testing.T) {
	d := NewServiceTime(2, 0.5, rand.NewPCG(42, 42))

	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		x := d.Rand()
		if x <= 0 {
			t.Fatalf("Sample %d is not positive: %g", i, x)
		}
		sum += x
	}
	assert.InDelta(t, 2, sum/n, 0.05)
}

func TestServiceTime_SameSeedSameSamples(t *testing.T) {
	a := NewServiceTime(3, 1, rand.New(rand.NewPCG(7, 7)))
	b := NewServiceTime(3, 1, rand.New(rand.NewPCG(7, 7)))
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Rand(), b.Rand())
	}
}
