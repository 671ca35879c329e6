package solvers

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// recordingMesh captures the operation order a scheme drives.
type recordingMesh struct {
	calls   []string
	failOn  string
	lost    []uint64
	gravity []float64
}

func (m *recordingMesh) record(op string) error {
	m.calls = append(m.calls, op)
	if op == m.failOn {
		return errors.New(op + " failed")
	}
	return nil
}

func (m *recordingMesh) ComputeNodalKinematics(int) error { return m.record("kinematics") }
func (m *recordingMesh) ComputeStressStrain(int, float64) error {
	return m.record("stress")
}
func (m *recordingMesh) ComputeForces(gravity []float64, _, _ int) error {
	m.gravity = gravity
	return m.record("forces")
}
func (m *recordingMesh) ComputeParticleKinematics(bool, int, float64, float64) error {
	return m.record("particles")
}
func (m *recordingMesh) RecomputeNodalMomentum(int) error { return m.record("momentum") }
func (m *recordingMesh) LocateParticles() ([]uint64, error) {
	if err := m.record("locate"); err != nil {
		return nil, err
	}
	return m.lost, nil
}

var schemeLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}()

func TestSchemeConstruction(t *testing.T) {
	_, err := NewUSF(nil, 0.01, nil, schemeLogger)
	assert.Error(t, err)
	_, err = NewMUSL(&recordingMesh{}, 0., nil, schemeLogger)
	assert.Error(t, err)

	u, err := NewUSF(&recordingMesh{}, 0.01, nil, schemeLogger)
	assert.NoError(t, err)
	assert.Equal(t, "usf", u.Name())
	m, err := NewMUSL(&recordingMesh{}, 0.01, nil, schemeLogger)
	assert.NoError(t, err)
	assert.Equal(t, "musl", m.Name())
}

func TestUSFStepOrder(t *testing.T) {
	mesh := &recordingMesh{}
	u, err := NewUSF(mesh, 0.01, []float64{0, -9.81}, schemeLogger)
	assert.NoError(t, err)
	assert.NoError(t, u.ComputeStep(0))
	// Stress before forces
	assert.Equal(t, []string{"kinematics", "stress", "forces", "particles", "locate"}, mesh.calls)
	assert.Equal(t, []float64{0, -9.81}, mesh.gravity)
}

func TestMUSLStepOrder(t *testing.T) {
	mesh := &recordingMesh{lost: []uint64{3}}
	m, err := NewMUSL(mesh, 0.01, nil, schemeLogger)
	assert.NoError(t, err)
	m.SetDamping(0.05)
	m.SetVelocityUpdate(true)
	assert.NoError(t, m.ComputeStep(1))
	// Second momentum mapping, then stress last
	assert.Equal(t, []string{"kinematics", "forces", "particles", "momentum", "stress", "locate"}, mesh.calls)
}

func TestSchemeErrorPropagation(t *testing.T) {
	for _, failOn := range []string{"kinematics", "stress", "forces", "particles", "locate"} {
		mesh := &recordingMesh{failOn: failOn}
		u, err := NewUSF(mesh, 0.01, nil, schemeLogger)
		assert.NoError(t, err)
		assert.Error(t, u.ComputeStep(0), failOn)
	}
	mesh := &recordingMesh{failOn: "momentum"}
	m, err := NewMUSL(mesh, 0.01, nil, schemeLogger)
	assert.NoError(t, err)
	assert.Error(t, m.ComputeStep(0))
}
