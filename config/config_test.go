package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var sampleYAML = []byte(`
Title: Uniaxial compression
CellType: ED3H8
Isoparametric: true
QuadratureOrder: 2
Scheme: musl
DT: 1.0e-5
NSteps: 1000
Gravity: [0, 0, -9.81]
NonlocalType: LME
NonlocalProperties:
  beta: 1.5
  support_radius: 3.0
  anisotropy: 1
CheckpointFile: particles.pod
CheckpointInterval: 100
`)

func TestParseParameters(t *testing.T) {
	var p Parameters
	assert.NoError(t, p.Parse(sampleYAML))
	assert.Equal(t, "Uniaxial compression", p.Title)
	assert.Equal(t, 3, p.Dimension)
	assert.Equal(t, "musl", p.Scheme)
	assert.Equal(t, 1.5, p.NonlocalProperties["beta"])
	assert.Equal(t, []float64{0, 0, -9.81}, p.Gravity)
}

func TestParameterDefaults(t *testing.T) {
	var p Parameters
	assert.NoError(t, p.Parse([]byte("CellType: ED2Q4\nDT: 0.001\n")))
	assert.Equal(t, 2, p.Dimension)
	assert.Equal(t, 1, p.QuadratureOrder)
	assert.Equal(t, "usf", p.Scheme)
}

func TestParameterValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown cell type", "CellType: ED4X1\nDT: 0.001\n"},
		{"dimension mismatch", "CellType: ED2Q4\nDimension: 3\nDT: 0.001\n"},
		{"non-positive dt", "CellType: ED2Q4\nDT: 0\n"},
		{"unknown scheme", "CellType: ED2Q4\nDT: 0.001\nScheme: leapfrog\n"},
		{"unknown nonlocal", "CellType: ED2Q4\nDT: 0.001\nNonlocalType: RKPM\n"},
		{"lme missing beta", "CellType: ED2Q4\nDT: 0.001\nNonlocalType: LME\nNonlocalProperties:\n  support_radius: 2\n"},
		{"gravity components", "CellType: ED2Q4\nDT: 0.001\nGravity: [0, 0, -9.81]\n"},
	}
	for _, tc := range cases {
		var p Parameters
		assert.Error(t, p.Parse([]byte(tc.yaml)), tc.name)
	}
}
