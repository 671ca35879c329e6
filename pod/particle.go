// Package pod defines the plain-old-data particle record persisted to
// checkpoint files. The layout is fixed and little-endian so checkpoints
// written on one platform restore bit-exact on another.
package pod

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// NStateVariables is the fixed capacity of the state-variable block; the
// live count is carried separately in NStateVars.
const NStateVariables = 20

// RecordSize is the serialised byte length of one Particle.
const RecordSize = 8 + // id
	3*8 + // mass, volume, pressure
	5*3*8 + // coordinates, displacement, natural size, velocity, acceleration
	2*6*8 + // stress, strain
	8 + // volumetric strain
	1 + // status
	8 + // cell id
	4 + // material id
	4 + // state-variable count
	NStateVariables*8

// Particle is the serialised state of one material point. Vectors carry
// x, y, z and Voigt tensors carry xx, yy, zz, xy, yz, zx.
type Particle struct {
	ID uint64

	Mass     float64
	Volume   float64
	Pressure float64

	Coordinates  [3]float64
	Displacement [3]float64
	NaturalSize  [3]float64
	Velocity     [3]float64
	Acceleration [3]float64

	Stress [6]float64
	Strain [6]float64

	VolumetricStrain float64

	Status     bool
	CellID     uint64
	MaterialID uint32

	NStateVars uint32
	StateVars  [NStateVariables]float64
}

// MarshalBinary serialises the particle into the fixed little-endian layout.
func (p *Particle) MarshalBinary() ([]byte, error) {
	if p.NStateVars > NStateVariables {
		return nil, fmt.Errorf("pod: particle %d carries %d state variables, capacity %d",
			p.ID, p.NStateVars, NStateVariables)
	}
	buf := make([]byte, RecordSize)
	off := 0
	putUint64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[off:], v)
		off += 8
	}
	putFloat := func(v float64) { putUint64(math.Float64bits(v)) }

	putUint64(p.ID)
	putFloat(p.Mass)
	putFloat(p.Volume)
	putFloat(p.Pressure)
	for _, vec := range [][3]float64{p.Coordinates, p.Displacement, p.NaturalSize, p.Velocity, p.Acceleration} {
		for _, v := range vec {
			putFloat(v)
		}
	}
	for _, v := range p.Stress {
		putFloat(v)
	}
	for _, v := range p.Strain {
		putFloat(v)
	}
	putFloat(p.VolumetricStrain)
	if p.Status {
		buf[off] = 1
	}
	off++
	putUint64(p.CellID)
	binary.LittleEndian.PutUint32(buf[off:], p.MaterialID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.NStateVars)
	off += 4
	for _, v := range p.StateVars {
		putFloat(v)
	}
	return buf, nil
}

// UnmarshalBinary restores the particle from one serialised record.
func (p *Particle) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("pod: record length %d, want %d", len(data), RecordSize)
	}
	off := 0
	getUint64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off:])
		off += 8
		return v
	}
	getFloat := func() float64 { return math.Float64frombits(getUint64()) }

	p.ID = getUint64()
	p.Mass = getFloat()
	p.Volume = getFloat()
	p.Pressure = getFloat()
	for _, vec := range []*[3]float64{&p.Coordinates, &p.Displacement, &p.NaturalSize, &p.Velocity, &p.Acceleration} {
		for i := range vec {
			vec[i] = getFloat()
		}
	}
	for i := range p.Stress {
		p.Stress[i] = getFloat()
	}
	for i := range p.Strain {
		p.Strain[i] = getFloat()
	}
	p.VolumetricStrain = getFloat()
	p.Status = data[off] != 0
	off++
	p.CellID = getUint64()
	p.MaterialID = binary.LittleEndian.Uint32(data[off:])
	off += 4
	p.NStateVars = binary.LittleEndian.Uint32(data[off:])
	off += 4
	for i := range p.StateVars {
		p.StateVars[i] = getFloat()
	}
	if p.NStateVars > NStateVariables {
		return fmt.Errorf("pod: particle %d carries %d state variables, capacity %d",
			p.ID, p.NStateVars, NStateVariables)
	}
	return nil
}

// WriteRecords streams a batch of particle records.
func WriteRecords(w io.Writer, particles []Particle) error {
	for i := range particles {
		buf, err := particles[i].MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("pod: write particle %d: %w", particles[i].ID, err)
		}
	}
	return nil
}

// ReadRecords streams particle records until EOF.
func ReadRecords(r io.Reader) ([]Particle, error) {
	var (
		out []Particle
		buf = make([]byte, RecordSize)
	)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("pod: read particle record %d: %w", len(out), err)
		}
		var p Particle
		if err := p.UnmarshalBinary(buf); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
}
