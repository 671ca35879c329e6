package solvers

import "github.com/sirupsen/logrus"

// MUSL is the modified-update-stress-last scheme: after the particle update
// the nodal momentum is rebuilt from the new particle velocities, and stress
// is computed from that second mapping.
type MUSL struct {
	scheme
}

// NewMUSL builds a modified-update-stress-last scheme over a mesh.
func NewMUSL(mesh Mesh, dt float64, gravity []float64, logger *logrus.Logger) (*MUSL, error) {
	s, err := newScheme("musl", mesh, dt, gravity, logger)
	if err != nil {
		return nil, err
	}
	return &MUSL{scheme: s}, nil
}

func (m *MUSL) Name() string { return "musl" }

// ComputeStep advances one explicit step in MUSL order.
func (m *MUSL) ComputeStep(step int) error {
	if err := m.mesh.ComputeNodalKinematics(m.phase); err != nil {
		return err
	}
	if err := m.mesh.ComputeForces(m.gravity, m.phase, step); err != nil {
		return err
	}
	if err := m.mesh.ComputeParticleKinematics(m.velocityUpdate, m.phase, m.dt, m.damping); err != nil {
		return err
	}
	if err := m.mesh.RecomputeNodalMomentum(m.phase); err != nil {
		return err
	}
	if err := m.mesh.ComputeStressStrain(m.phase, m.dt); err != nil {
		return err
	}
	return m.locate(step)
}
