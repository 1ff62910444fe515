package placement

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/placement-engine/internal/geom"
)

// #region bind
func (s *Session) bindLabel(inst *Instance, now time.Time) {
	id := inst.ID
	s.labels[id] = &Label{
		InstanceID: id,
		Text:       fmt.Sprintf("%s  $%.2f", inst.Entry.Name, inst.Entry.SalePrice()),
		Scale:      1,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.LabelLifetime),
	}
	s.labelTasks[id] = s.sched.After(now, s.cfg.LabelLifetime, func() {
		delete(s.labelTasks, id)
		delete(s.labels, id)
	})
}

func (s *Session) dropLabel(id string) {
	s.labelTasks[id].Cancel()
	delete(s.labelTasks, id)
	delete(s.labels, id)
}

// #endregion bind

// #region refresh
// refreshLabels re-anchors every label to its instance. Labels whose
// instance is gone or a placeholder are torn down; off-screen labels
// are only hidden.
func (s *Session) refreshLabels() {
	vp := s.renderer.Viewport()
	cam := s.renderer.CameraPosition()
	m := s.cfg.LabelMargin

	for id, l := range s.labels {
		inst, ok := s.instances[id]
		if !ok || inst.Placeholder {
			s.dropLabel(id)
			continue
		}
		pos := inst.Pose.Position
		p := s.renderer.Project(pos)
		inFront := p.Depth > -1 && p.Depth < 1
		onScreen := p.X >= -m && p.X <= vp.Width+m && p.Y >= -m && p.Y <= vp.Height+m
		if !inFront || !onScreen {
			l.Visible = false
			continue
		}
		l.Visible = true
		l.X, l.Y = p.X, p.Y
		l.Scale = labelScale(geom.Distance(pos, cam), s.cfg)
	}
}

func labelScale(distance float64, cfg Config) float64 {
	if distance <= 0 {
		return cfg.MaxLabelScale
	}
	return geom.Clamp(cfg.LabelScaleBase/distance, cfg.MinLabelScale, cfg.MaxLabelScale)
}

// #endregion refresh
