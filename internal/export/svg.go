package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/chassisctl/internal/metrics"
	"github.com/san-kum/chassisctl/internal/odometry"
)

const (
	TruthColor    = "#00ff88"
	EstimateColor = "#ffaa00"
)

// bounds is the field rectangle drawn, in meters.
type bounds struct {
	minX, maxX, minY, maxY float64
}

func (b *bounds) include(p odometry.Pose) {
	b.minX = math.Min(b.minX, p.X)
	b.maxX = math.Max(b.maxX, p.X)
	b.minY = math.Min(b.minY, p.Y)
	b.maxY = math.Max(b.maxY, p.Y)
}

// square pads the rectangle and makes both sides equal so the path keeps
// its shape.
func (b *bounds) square() float64 {
	side := math.Max(b.maxX-b.minX, b.maxY-b.minY)
	if side == 0 {
		side = 1
	}
	side *= 1.2
	cx, cy := (b.minX+b.maxX)/2, (b.minY+b.maxY)/2
	b.minX, b.maxX = cx-side/2, cx+side/2
	b.minY, b.maxY = cy-side/2, cy+side/2
	return side
}

// PathSVG draws the true path and, when the trace carries one, the odometry
// estimate as a top-down view. Heading 0 points up the page and heading 90
// to the right.
func PathSVG(w io.Writer, trace []metrics.Sample, size int) error {
	if len(trace) < 2 {
		return fmt.Errorf("export: need at least 2 samples, got %d", len(trace))
	}

	b := bounds{minX: trace[0].Truth.X, maxX: trace[0].Truth.X, minY: trace[0].Truth.Y, maxY: trace[0].Truth.Y}
	for _, s := range trace {
		b.include(s.Truth)
		if s.HasEstimate {
			b.include(s.Estimate)
		}
	}
	side := b.square()
	scale := float64(size) / side

	// Field X runs up the page and field Y to the right.
	project := func(p odometry.Pose) (float64, float64) {
		return (p.Y - b.minY) * scale, float64(size) - (p.X-b.minX)*scale
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, size, size, size, size))

	sb.WriteString(pathElement(trace, project, func(s metrics.Sample) (odometry.Pose, bool) { return s.Truth, true }, TruthColor, ""))
	if trace[0].HasEstimate {
		sb.WriteString(pathElement(trace, project, func(s metrics.Sample) (odometry.Pose, bool) { return s.Estimate, s.HasEstimate }, EstimateColor, ` stroke-dasharray="4 3"`))
	}

	x, y := project(trace[len(trace)-1].Truth)
	sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>
</svg>
`, x, y, TruthColor))

	_, err := io.WriteString(w, sb.String())
	return err
}

func pathElement(
	trace []metrics.Sample,
	project func(odometry.Pose) (float64, float64),
	pose func(metrics.Sample) (odometry.Pose, bool),
	color, extra string,
) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5"%s d="`, color, extra))
	first := true
	for _, s := range trace {
		p, ok := pose(s)
		if !ok {
			continue
		}
		x, y := project(p)
		if first {
			sb.WriteString(fmt.Sprintf("M%.1f,%.1f", x, y))
			first = false
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}
	sb.WriteString(`"/>
`)
	return sb.String()
}
