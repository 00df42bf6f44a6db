package model

// Shape classifies a user's tag-activity breadth/depth pattern.
type Shape string

const (
	ShapeI    Shape = "I"    // deep expertise in one tag, little breadth
	ShapeT    Shape = "T"    // broad activity with one dominant deep area
	ShapePi   Shape = "Pi"   // two strong deep areas
	ShapeComb Shape = "Comb" // several moderate peaks, no dominant area
)

// Shapes lists all shapes in the fixed reporting order.
var Shapes = []Shape{ShapeI, ShapeT, ShapePi, ShapeComb}

func (s Shape) String() string { return string(s) }

// Valid reports whether s is one of the four defined shapes.
func (s Shape) Valid() bool {
	switch s {
	case ShapeI, ShapeT, ShapePi, ShapeComb:
		return true
	}
	return false
}
