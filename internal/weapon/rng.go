package weapon

import "math/rand/v2"

// seedStream selects the PCG stream shared by every peer ("netplay" in ASCII).
const seedStream = 0x6e6574706c6179

// Rand is the deterministic generator behind a discharge. Identical seeds yield
// identical sequences on every platform: PCG output is integer arithmetic and
// the derived distributions only add and scale.
type Rand struct {
	src *rand.PCG
}

// NewRand seeds a generator from a transmitted 32-bit seed.
func NewRand(seed int32) *Rand {
	return &Rand{src: rand.NewPCG(uint64(uint32(seed)), seedStream)}
}

// Float64 returns a uniform sample in [0, 1) built from the top 53 bits.
func (r *Rand) Float64() float64 {
	return float64(r.src.Uint64()>>11) * 0x1p-53
}

// Range returns a uniform sample in [min, max).
func (r *Rand) Range(min, max float64) float64 {
	return min + float64((max-min)*r.Float64())
}

// Gaussian approximates a normal sample with standard deviation sigma using
// the Irwin-Hall sum of twelve uniforms.
func (r *Rand) Gaussian(sigma float64) float64 {
	sum := 0.0
	for i := 0; i < 12; i++ {
		sum += r.Float64()
	}
	return float64((sum - 6) * sigma)
}
