package engine

import (
	"math"
	"math/rand/v2"

	"github.com/alphabot-ai/stumble/internal/store"
)

// Roller supplies uniform draws in [0, 1).
type Roller interface {
	Float64() float64
}

type defaultRoller struct{}

func (defaultRoller) Float64() float64 { return rand.Float64() }

// DefaultRoller draws from math/rand/v2.
var DefaultRoller Roller = defaultRoller{}

// viewBands maps lower bounds of total_points to the draw a view needs to
// earn anything. The first band always pays.
var viewBands = []struct {
	min       int
	threshold float64
}{
	{999, 0.995},
	{500, 0.99},
	{300, 0.95},
	{200, 0.90},
	{100, 0.80},
	{80, 0.70},
	{60, 0.60},
	{50, 0.50},
	{25, 0.40},
	{20, 0.35},
	{15, 0.30},
	{10, 0.25},
	{5, 0.20},
	{3, 0.15},
	{1, 0.10},
}

// ViewReward returns 0 to 3 points for serving a site to a known user with
// the given total_points.
func ViewReward(r Roller, totalPoints int) int {
	for _, band := range viewBands {
		if totalPoints >= band.min {
			if r.Float64() < band.threshold {
				return 0
			}
			return viewMagnitude(r)
		}
	}
	return viewMagnitude(r)
}

func viewMagnitude(r Roller) int {
	roll := r.Float64()
	switch {
	case roll > 0.95:
		return 3
	case roll > 0.7:
		return 2
	}
	return 1
}

func tagSeverity(r Roller) int {
	roll := r.Float64()
	switch {
	case roll > 0.85:
		return 9
	case roll > 0.65:
		return 8
	case roll > 0.5:
		return 7
	case roll > 0.3:
		return 6
	}
	return 5
}

// TagReward pays for a tag whose bridge count now sits in [3, 10].
func TagReward(r Roller, count int) int {
	if count < 3 || count > 10 {
		return 0
	}
	return tagSeverity(r)
}

// ShadowTagReward is the cosmetic bonus shown to shadow banned taggers.
func ShadowTagReward(r Roller) int {
	if r.Float64() < 0.997 {
		return 0
	}
	return tagSeverity(r)
}

// RatingReward returns the rater's bonus and the change to the submitter's
// balance. Liking a site that trails on likes, or disliking one that leads,
// earns the rater nothing.
func RatingReward(r Roller, rating store.Rating, likes, dislikes int) (rater, submitter int) {
	if rating == store.RatingLike {
		if likes >= dislikes {
			rater = 1
			if r.Float64() > 0.65 {
				rater = 2
			}
		}
		return rater, int(math.Floor(r.Float64()*2)) + 2
	}

	if dislikes >= likes {
		rater = 2
		if r.Float64() > 0.65 {
			rater = 3
		}
	}
	return rater, -(int(math.Floor(r.Float64()*2)) + 1)
}
