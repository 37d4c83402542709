package streaming

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Faultbox/terrainer/internal/terrain"
	"github.com/Faultbox/terrainer/pkg/math"
)

// DataType selects what a request loads.
type DataType uint8

const (
	DataMinmax DataType = 1 << iota
)

// Result is the outcome of one worker request.
type Result int

const (
	ResultOK Result = iota
	ResultIOError
	ResultFormatError
	ResultCancelled
	ResultOutOfMemory

	resultCount
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultIOError:
		return "IOError"
	case ResultFormatError:
		return "FormatError"
	case ResultCancelled:
		return "Cancelled"
	case ResultOutOfMemory:
		return "OutOfMemory"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

type request struct {
	id       uint64
	sector   terrain.CellKey
	index    int
	priority float32
	types    DataType
	lod      int
}

// behindFactor scales the priority of sectors behind the viewer.
const behindFactor = 0.1

type viewer struct {
	pos      math.Vec3
	vel      math.Vec3
	forward  math.Vec3
	hasState bool
}

// predicted returns the viewer position after dt seconds of linear motion.
func (v viewer) predicted(dt float32) math.Vec3 {
	return v.pos.Add(v.vel.Scale(dt))
}

// sectorCenter returns the world position of a sector's center on the
// ground plane (Y is zero).
func (s *Storage) sectorCenter(sector terrain.CellKey) math.Vec3 {
	half := float32(s.layout.SectorChunks()) / 2
	chunk := float32(s.layout.ChunkSize)
	return math.Vec3{
		X: s.cfg.MapOffset.X + (float32(sector.X)*2*half+half)*chunk*s.cfg.MapScale.X,
		Z: s.cfg.MapOffset.Z + (float32(sector.Z)*2*half+half)*chunk*s.cfg.MapScale.Z,
	}
}

// priority ranks a sector for loading. Distances are measured on the ground
// plane. Without viewer state every sector ranks by frustum membership only.
func (s *Storage) priority(sector terrain.CellKey, inFrustum bool) float32 {
	cfg := &s.cfg
	center := s.sectorCenter(sector)

	var eff float32
	if s.viewer.hasState {
		pos := flat(s.viewer.pos)
		pred := flat(s.viewer.predicted(float32(cfg.PredictionTime.Seconds())))
		eff = min(center.Distance(pos), center.Distance(pred))
	}

	p := cfg.KDistance * cfg.HalfDecay / (eff + cfg.HalfDecay)
	if inFrustum {
		p *= cfg.FrustumBonus
	}

	if s.viewer.hasState {
		fwd := flat(s.viewer.forward)
		to := center.Sub(flat(s.viewer.pos))
		if fwd.LengthSquared() > 0 && to.LengthSquared() > 0 {
			dot := fwd.Normalize().Dot(to.Normalize())
			if dot < 0 {
				p *= behindFactor
			} else {
				p *= 1 + cfg.HeadingBoost*dot
			}
		}
	}
	return p
}

func flat(v math.Vec3) math.Vec3 {
	return math.Vec3{X: v.X, Z: v.Z}
}

// sortRequests orders requests by descending priority, oldest first on ties.
func sortRequests(reqs []request) {
	slices.SortFunc(reqs, func(a, b request) int {
		if c := cmp.Compare(b.priority, a.priority); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
}
