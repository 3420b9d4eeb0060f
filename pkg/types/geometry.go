package types

import "fmt"

// Dim2d is a 2D point or size in pixels.
type Dim2d struct {
	X int32
	Y int32
}

func (d Dim2d) Add(other Dim2d) Dim2d {
	return Dim2d{X: d.X + other.X, Y: d.Y + other.Y}
}

func (d *Dim2d) AddInPlace(other Dim2d) {
	d.X += other.X
	d.Y += other.Y
}

func (d Dim2d) String() string {
	return fmt.Sprintf("Dim2d(x=%d, y=%d)", d.X, d.Y)
}

// Rect is a region of interest.
type Rect struct {
	Origin Dim2d
	Size   Dim2d
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Size.X == 0 || r.Size.Y == 0
}

func (r Rect) String() string {
	return fmt.Sprintf("Rect(origin=(%d, %d), size=(%d, %d))", r.Origin.X, r.Origin.Y, r.Size.X, r.Size.Y)
}

// Landmark is a keypoint of a detection.
// A negative Visibility means visibility is unknown.
type Landmark struct {
	X          int32
	Y          int32
	Z          int32
	Visibility float32
}

func NewLandmark(x, y, z int32) Landmark {
	return Landmark{X: x, Y: y, Z: z, Visibility: -1}
}

// Equal compares positions only; visibility is ignored.
func (l Landmark) Equal(other Landmark) bool {
	return l.X == other.X && l.Y == other.Y && l.Z == other.Z
}

func (l Landmark) String() string {
	return fmt.Sprintf("Landmark(x=%d, y=%d, z=%d, visibility=%g)", l.X, l.Y, l.Z, l.Visibility)
}

// Version of an inference runtime.
type Version struct {
	Major    int
	Minor    int
	Subminor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Subminor)
}
