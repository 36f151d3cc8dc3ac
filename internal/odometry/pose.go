package odometry

import (
	"fmt"
	"math"
)

// Pose is a planar robot pose. X and Y are in meters; Theta is the heading in
// degrees, clockwise-positive, with heading 0 along +X and heading 90 along +Y.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3fm, %.3fm, %.2f°)", p.X, p.Y, p.Theta)
}

// DistanceTo returns the straight-line distance to (x, y).
func (p Pose) DistanceTo(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// AngleTo returns the turn in degrees, in (-180, 180], that points the
// heading at (x, y).
func (p Pose) AngleTo(x, y float64) float64 {
	bearing := math.Atan2(y-p.Y, x-p.X) * 180 / math.Pi
	return WrapDegrees(bearing - p.Theta)
}

// WrapDegrees maps an angle into (-180, 180].
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}
