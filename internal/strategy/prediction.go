package strategy

import (
	"math"

	"github.com/sightline/sightline/internal/core"
)

// edgeBand is how close to a frame edge a predicted position must be
// before the subject is considered to be leaving the view.
const edgeBand = 0.1

// minTimeDelta guards velocity computation against duplicate timestamps.
const minTimeDelta = 0.001

// PredictPosition extrapolates where a subject will be secondsAhead
// from its last sighting, clamped to the frame. Velocity comes from the
// last two positions on the subject's current camera; when only one
// sighting exists there, the most recent positions from any camera are
// used instead.
func (m *Manager) PredictPosition(id core.SubjectID, secondsAhead float64) (core.Point, error) {
	subj, ok := m.Subject(id)
	if !ok {
		return core.Point{}, core.ErrSubjectNotFound
	}
	if len(subj.Positions) == 0 {
		return core.Point{}, core.ErrSubjectNotFound
	}

	prev, last, ok := recentPair(subj)
	if !ok {
		// A single sighting gives no velocity; the best guess is
		// that the subject stays put.
		return subj.Positions[len(subj.Positions)-1].Point, nil
	}

	dt := last.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt < minTimeDelta {
		dt = minTimeDelta
	}

	vx := (last.Point.X - prev.Point.X) / dt
	vy := (last.Point.Y - prev.Point.Y) / dt

	return clampPoint(core.Point{
		X: last.Point.X + vx*secondsAhead,
		Y: last.Point.Y + vy*secondsAhead,
	}), nil
}

// Trajectory reports the subject's current heading and speed. The
// angle is measured with screen-up positive so 0 means rightward and
// π/2 means toward the top of the frame.
func (m *Manager) Trajectory(id core.SubjectID) (Trajectory, error) {
	subj, ok := m.Subject(id)
	if !ok {
		return Trajectory{}, core.ErrSubjectNotFound
	}

	prev, last, ok := recentPair(subj)
	if !ok {
		return Trajectory{}, nil
	}

	dt := last.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt < minTimeDelta {
		dt = minTimeDelta
	}

	dx := last.Point.X - prev.Point.X
	dy := last.Point.Y - prev.Point.Y

	return Trajectory{
		Angle: math.Atan2(-dy, dx),
		Speed: math.Hypot(dx, dy) / dt,
	}, nil
}

// PredictNextCameras names the cameras a subject is likely to appear on
// next: the origin camera's adjacent cameras that sit on the side of
// the frame edge the predicted position approaches. A camera with no
// adjacency set never predicts a hand-off.
func (m *Manager) PredictNextCameras(id core.SubjectID) ([]core.CameraID, error) {
	subj, ok := m.Subject(id)
	if !ok {
		return nil, core.ErrSubjectNotFound
	}

	predicted, err := m.PredictPosition(id, 5)
	if err != nil {
		return nil, err
	}

	m.camMu.RLock()
	defer m.camMu.RUnlock()

	origin, ok := m.cameras[subj.LastCamera]
	if !ok {
		return nil, nil
	}

	seen := make(map[core.CameraID]bool)
	var next []core.CameraID
	add := func(match func(cam *Camera) bool) {
		for _, cid := range origin.Adjacent {
			cam, ok := m.cameras[cid]
			if !ok || cid == origin.ID || !cam.Active || seen[cid] {
				continue
			}
			if match(cam) {
				seen[cid] = true
				next = append(next, cid)
			}
		}
	}

	if predicted.X < edgeBand {
		add(func(cam *Camera) bool { return cam.Position.X < origin.Position.X })
	}
	if predicted.X > 1-edgeBand {
		add(func(cam *Camera) bool { return cam.Position.X > origin.Position.X })
	}
	if predicted.Y < edgeBand {
		add(func(cam *Camera) bool { return cam.Position.Y < origin.Position.Y })
	}
	if predicted.Y > 1-edgeBand {
		add(func(cam *Camera) bool { return cam.Position.Y > origin.Position.Y })
	}

	return next, nil
}

// recentPair picks the two sightings velocity is computed from.
func recentPair(subj *TrackedSubject) (prev, last SubjectPosition, ok bool) {
	if len(subj.Positions) < 2 {
		return SubjectPosition{}, SubjectPosition{}, false
	}

	var onCamera []SubjectPosition
	for _, pos := range subj.Positions {
		if pos.CameraID == subj.LastCamera {
			onCamera = append(onCamera, pos)
		}
	}
	if len(onCamera) >= 2 {
		return onCamera[len(onCamera)-2], onCamera[len(onCamera)-1], true
	}

	all := subj.Positions
	return all[len(all)-2], all[len(all)-1], true
}
