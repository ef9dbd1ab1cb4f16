package engine

import (
	"testing"

	"github.com/alphabot-ai/stumble/internal/store"
)

// seqRoller replays fixed draws, cycling when exhausted.
type seqRoller struct {
	vals []float64
	i    int
}

func (r *seqRoller) Float64() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func rolls(vals ...float64) *seqRoller {
	return &seqRoller{vals: vals}
}

func TestViewRewardBands(t *testing.T) {
	tests := []struct {
		name   string
		points int
		draws  []float64
		want   int
	}{
		{"new user skips the gate", 0, []float64{0.96}, 3},
		{"new user low magnitude", 0, []float64{0.1}, 1},
		{"band 1 below gate", 1, []float64{0.09}, 0},
		{"band 1 at gate", 1, []float64{0.10, 0.8}, 2},
		{"band 3 below gate", 4, []float64{0.149}, 0},
		{"band 25 at gate", 25, []float64{0.40, 0.5}, 1},
		{"band 50 below gate", 59, []float64{0.49}, 0},
		{"band 100 at gate", 100, []float64{0.80, 0.71}, 2},
		{"band 500 below gate", 998, []float64{0.989}, 0},
		{"band 500 at gate", 998, []float64{0.99, 0.2}, 1},
		{"top band below gate", 999, []float64{0.994}, 0},
		{"top band at gate", 5000, []float64{0.995, 0.951}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ViewReward(rolls(tt.draws...), tt.points); got != tt.want {
				t.Errorf("ViewReward(%d) = %d, want %d", tt.points, got, tt.want)
			}
		})
	}
}

func TestViewRewardAlwaysPaysNewUsers(t *testing.T) {
	for i := 0; i < 1000; i++ {
		got := ViewReward(DefaultRoller, 0)
		if got < 1 || got > 3 {
			t.Fatalf("expected 1..3 for a zero-point user, got %d", got)
		}
	}
}

func TestTagReward(t *testing.T) {
	tests := []struct {
		count int
		roll  float64
		want  int
	}{
		{2, 0.99, 0},
		{3, 0.86, 9},
		{4, 0.85, 8},
		{5, 0.66, 8},
		{6, 0.65, 7},
		{7, 0.51, 7},
		{8, 0.5, 6},
		{9, 0.31, 6},
		{10, 0.3, 5},
		{11, 0.99, 0},
	}

	for _, tt := range tests {
		if got := TagReward(rolls(tt.roll), tt.count); got != tt.want {
			t.Errorf("TagReward(count=%d, roll=%v) = %d, want %d", tt.count, tt.roll, got, tt.want)
		}
	}
}

func TestShadowTagReward(t *testing.T) {
	if got := ShadowTagReward(rolls(0.9969)); got != 0 {
		t.Errorf("expected 0 below the gate, got %d", got)
	}
	if got := ShadowTagReward(rolls(0.997, 0.9)); got != 9 {
		t.Errorf("expected 9, got %d", got)
	}

	const n = 200000
	granted := 0
	for i := 0; i < n; i++ {
		if ShadowTagReward(DefaultRoller) > 0 {
			granted++
		}
	}
	rate := float64(granted) / n
	if rate < 0.002 || rate > 0.004 {
		t.Errorf("shadow bonus rate %.4f outside expected range", rate)
	}
}

func TestRatingReward(t *testing.T) {
	tests := []struct {
		name          string
		rating        store.Rating
		likes         int
		dislikes      int
		draws         []float64
		wantRater     int
		wantSubmitter int
	}{
		{"like on even site high", store.RatingLike, 0, 0, []float64{0.66, 0.99}, 2, 3},
		{"like on even site low", store.RatingLike, 3, 3, []float64{0.65, 0.0}, 1, 2},
		{"like on popular site", store.RatingLike, 5, 1, []float64{0.2}, 1, 2},
		{"like on disliked site", store.RatingLike, 1, 5, []float64{0.99}, 0, 3},
		{"dislike on even site high", store.RatingDislike, 2, 2, []float64{0.9, 0.6}, 3, -2},
		{"dislike on even site low", store.RatingDislike, 0, 0, []float64{0.1, 0.1}, 2, -1},
		{"dislike on liked site", store.RatingDislike, 4, 1, []float64{0.2}, 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rater, submitter := RatingReward(rolls(tt.draws...), tt.rating, tt.likes, tt.dislikes)
			if rater != tt.wantRater || submitter != tt.wantSubmitter {
				t.Errorf("got (%d, %d), want (%d, %d)", rater, submitter, tt.wantRater, tt.wantSubmitter)
			}
		})
	}
}

func TestLikeOnDislikedSiteNeverPays(t *testing.T) {
	for i := 0; i < 1000; i++ {
		rater, submitter := RatingReward(DefaultRoller, store.RatingLike, 0, 1)
		if rater != 0 {
			t.Fatalf("expected 0 rater bonus, got %d", rater)
		}
		if submitter < 2 || submitter > 3 {
			t.Fatalf("submitter delta %d outside 2..3", submitter)
		}
	}
}
