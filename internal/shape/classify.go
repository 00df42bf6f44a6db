// Package shape assigns expertise shapes from per-tag activity signatures.
package shape

import (
	"sort"

	"github.com/empirical-se/expertise-cli/internal/config"
	"github.com/empirical-se/expertise-cli/internal/model"
)

// Classify maps one user's tag-activity signature to exactly one shape.
// It is pure and total: every mapping, including the empty one, yields a
// shape and never an error.
//
// Rules, in order, over activity shares (fraction of total posts):
//  1. no activity                                      -> I
//  2. top share >= specialist_share                    -> I
//  3. two peaks >= strong_share, combined >= combined  -> Pi
//  4. top share >= dominant_share, breadth >= min      -> T
//  5. breadth <= 1 -> I, otherwise                     -> Comb
//
// Breadth counts tags at or above the activity floor. Pi is checked before
// T so two near-equal strong peaks are never absorbed by dominance.
func Classify(tagPosts map[string]int, cfg config.ShapeConfig) model.Shape {
	total := 0
	for _, n := range tagPosts {
		total += n
	}
	if total == 0 {
		return model.ShapeI
	}

	counts := make([]int, 0, len(tagPosts))
	breadth := 0
	for _, n := range tagPosts {
		counts = append(counts, n)
		if n >= cfg.ActivityFloor {
			breadth++
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	top := float64(counts[0]) / float64(total)

	if top >= cfg.SpecialistShare {
		return model.ShapeI
	}

	if len(counts) >= 2 {
		second := float64(counts[1]) / float64(total)
		if top >= cfg.StrongShare && second >= cfg.StrongShare && top+second >= cfg.CombinedShare {
			return model.ShapePi
		}
	}

	if top >= cfg.DominantShare && breadth >= cfg.MinBreadth {
		return model.ShapeT
	}

	if breadth <= 1 {
		return model.ShapeI
	}
	return model.ShapeComb
}

// Assign classifies every user and returns the per-user shape map.
func Assign(users map[int]*model.User, cfg config.ShapeConfig) map[int]model.Shape {
	shapes := make(map[int]model.Shape, len(users))
	for id, u := range users {
		shapes[id] = Classify(u.TagPosts, cfg)
	}
	return shapes
}

// Distribution counts users per shape.
func Distribution(shapes map[int]model.Shape) map[model.Shape]int {
	dist := make(map[model.Shape]int, len(model.Shapes))
	for _, s := range shapes {
		dist[s]++
	}
	return dist
}
