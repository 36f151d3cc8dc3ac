package metrics

import "github.com/san-kum/chassisctl/internal/odometry"

// PathLength is the distance the chassis actually traveled.
type PathLength struct {
	name   string
	last   odometry.Pose
	length float64
	primed bool
}

func NewPathLength() *PathLength {
	return &PathLength{name: "path_length"}
}

func (p *PathLength) Name() string { return p.name }

func (p *PathLength) Observe(s Sample) {
	if p.primed {
		p.length += p.last.DistanceTo(s.Truth.X, s.Truth.Y)
	}
	p.last, p.primed = s.Truth, true
}

func (p *PathLength) Value() float64 { return p.length }

func (p *PathLength) Reset() {
	p.length = 0
	p.primed = false
}
