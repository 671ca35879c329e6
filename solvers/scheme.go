// Package solvers implements the explicit stress-update schemes (USF, MUSL)
// and the sparse global assembly for the semi-implicit pressure solve.
package solvers

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Mesh is the surface a stress-update scheme drives each step. The mesh owns
// nodes, cells and particles; the scheme only fixes the operation order.
type Mesh interface {
	// ComputeNodalKinematics maps particle mass and momentum to the nodes
	// and computes nodal velocities for a phase.
	ComputeNodalKinematics(phase int) error
	// ComputeStressStrain updates particle strain and stress from the nodal
	// velocity field.
	ComputeStressStrain(phase int, dt float64) error
	// ComputeForces maps body, external and internal forces to the nodes.
	ComputeForces(gravity []float64, phase int, step int) error
	// ComputeParticleKinematics advances particle velocity and position
	// from the nodal accelerations.
	ComputeParticleKinematics(velocityUpdate bool, phase int, dt, damping float64) error
	// RecomputeNodalMomentum rebuilds nodal momentum from the updated
	// particle velocities (the MUSL second mapping).
	RecomputeNodalMomentum(phase int) error
	// LocateParticles reassigns particles to cells after convection,
	// returning the ids of particles that left the mesh.
	LocateParticles() ([]uint64, error)
}

// Scheme advances the analysis by one explicit step.
type Scheme interface {
	Name() string
	ComputeStep(step int) error
}

type scheme struct {
	mesh           Mesh
	dt             float64
	gravity        []float64
	phase          int
	velocityUpdate bool
	damping        float64
	log            *logrus.Entry
}

func newScheme(name string, mesh Mesh, dt float64, gravity []float64, logger *logrus.Logger) (scheme, error) {
	if mesh == nil {
		return scheme{}, fmt.Errorf("solvers: %s scheme requires a mesh", name)
	}
	if dt <= 0 {
		return scheme{}, fmt.Errorf("solvers: %s scheme requires a positive dt, got %v", name, dt)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return scheme{
		mesh:    mesh,
		dt:      dt,
		gravity: gravity,
		log:     logger.WithField("scheme", name),
	}, nil
}

// SetDamping installs the Cundall damping factor applied in the particle
// kinematics update.
func (s *scheme) SetDamping(damping float64) { s.damping = damping }

// SetVelocityUpdate switches the particle velocity update from FLIP to PIC.
func (s *scheme) SetVelocityUpdate(update bool) { s.velocityUpdate = update }

// SetPhase selects the phase the scheme advances.
func (s *scheme) SetPhase(phase int) { s.phase = phase }

func (s *scheme) locate(step int) error {
	lost, err := s.mesh.LocateParticles()
	if err != nil {
		return err
	}
	if len(lost) > 0 {
		s.log.WithFields(logrus.Fields{
			"step": step, "particles": len(lost),
		}).Warn("particles left the mesh and were removed")
	}
	return nil
}
