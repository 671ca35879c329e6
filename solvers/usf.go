package solvers

import "github.com/sirupsen/logrus"

// USF is the update-stress-first scheme: stress and strain are computed from
// the nodal velocity field of the previous mapping, before forces and the
// particle update.
type USF struct {
	scheme
}

// NewUSF builds an update-stress-first scheme over a mesh.
func NewUSF(mesh Mesh, dt float64, gravity []float64, logger *logrus.Logger) (*USF, error) {
	s, err := newScheme("usf", mesh, dt, gravity, logger)
	if err != nil {
		return nil, err
	}
	return &USF{scheme: s}, nil
}

func (u *USF) Name() string { return "usf" }

// ComputeStep advances one explicit step in USF order.
func (u *USF) ComputeStep(step int) error {
	if err := u.mesh.ComputeNodalKinematics(u.phase); err != nil {
		return err
	}
	if err := u.mesh.ComputeStressStrain(u.phase, u.dt); err != nil {
		return err
	}
	if err := u.mesh.ComputeForces(u.gravity, u.phase, step); err != nil {
		return err
	}
	if err := u.mesh.ComputeParticleKinematics(u.velocityUpdate, u.phase, u.dt, u.damping); err != nil {
		return err
	}
	return u.locate(step)
}
