// Package config parses the YAML analysis input file.
package config

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type Parameters struct {
	Title              string             `yaml:"Title"`
	Dimension          int                `yaml:"Dimension"`
	CellType           string             `yaml:"CellType"` // ED3H8, ED3H20, ED2Q4, ED2Q8, ED2Q9, ED2T3, ED2T6
	Isoparametric      bool               `yaml:"Isoparametric"`
	QuadratureOrder    int                `yaml:"QuadratureOrder"`
	Scheme             string             `yaml:"Scheme"` // usf or musl
	DT                 float64            `yaml:"DT"`
	NSteps             int                `yaml:"NSteps"`
	Gravity            []float64          `yaml:"Gravity"`
	Damping            float64            `yaml:"Damping"`
	VelocityUpdate     bool               `yaml:"VelocityUpdate"`
	NonlocalType       string             `yaml:"NonlocalType"` // "", BSPLINE or LME
	NonlocalProperties map[string]float64 `yaml:"NonlocalProperties"`
	CheckpointFile     string             `yaml:"CheckpointFile"`
	CheckpointInterval int                `yaml:"CheckpointInterval"`
}

var cellTypeDimension = map[string]int{
	"ED3H8": 3, "ED3H20": 3,
	"ED2Q4": 2, "ED2Q8": 2, "ED2Q9": 2,
	"ED2T3": 2, "ED2T6": 2,
}

func (p *Parameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, p); err != nil {
		return err
	}
	return p.Validate()
}

func (p *Parameters) Validate() error {
	dim, ok := cellTypeDimension[p.CellType]
	if !ok {
		return fmt.Errorf("config: unknown cell type %q", p.CellType)
	}
	if p.Dimension == 0 {
		p.Dimension = dim
	}
	if p.Dimension != dim {
		return fmt.Errorf("config: dimension %d incompatible with cell type %q", p.Dimension, p.CellType)
	}
	if p.DT <= 0 {
		return fmt.Errorf("config: DT must be positive, got %v", p.DT)
	}
	if p.NSteps < 0 {
		return fmt.Errorf("config: NSteps must be non-negative, got %d", p.NSteps)
	}
	if p.QuadratureOrder == 0 {
		p.QuadratureOrder = 1
	}
	switch p.Scheme {
	case "":
		p.Scheme = "usf"
	case "usf", "musl":
	default:
		return fmt.Errorf("config: unknown scheme %q", p.Scheme)
	}
	switch p.NonlocalType {
	case "", "BSPLINE":
	case "LME":
		for _, key := range []string{"beta", "support_radius"} {
			if _, ok := p.NonlocalProperties[key]; !ok {
				return fmt.Errorf("config: LME requires nonlocal property %q", key)
			}
		}
	default:
		return fmt.Errorf("config: unknown nonlocal type %q", p.NonlocalType)
	}
	if len(p.Gravity) != 0 && len(p.Gravity) != p.Dimension {
		return fmt.Errorf("config: gravity has %d components for dimension %d", len(p.Gravity), p.Dimension)
	}
	return nil
}

func (p *Parameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", p.Title)
	fmt.Printf("[%s]\t\t\t= Cell Type\n", p.CellType)
	fmt.Printf("[%d]\t\t\t\t= Dimension\n", p.Dimension)
	fmt.Printf("[%d]\t\t\t\t= Quadrature Order\n", p.QuadratureOrder)
	fmt.Printf("[%s]\t\t\t= Scheme\n", p.Scheme)
	fmt.Printf("%8.5g\t\t= DT\n", p.DT)
	fmt.Printf("[%d]\t\t\t= NSteps\n", p.NSteps)
	if p.NonlocalType != "" {
		fmt.Printf("[%s]\t\t= Nonlocal Type\n", p.NonlocalType)
		keys := make([]string, 0, len(p.NonlocalProperties))
		for k := range p.NonlocalProperties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("NonlocalProperties[%s] = %v\n", key, p.NonlocalProperties[key])
		}
	}
}
