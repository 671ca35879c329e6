/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/geomechanics/gompm/cells"
	"github.com/geomechanics/gompm/config"
	"github.com/geomechanics/gompm/elements"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate an analysis input file and its cell configuration",
	Long: `
Parses the YAML input file, builds the configured cell on its reference
geometry and reports the geometric diagnostics,

gompm check -F input.yaml `,
	Run: func(cmd *cobra.Command, args []string) {
		fileName, _ := cmd.Flags().GetString("inputFile")
		prof, _ := cmd.Flags().GetBool("profile")
		if prof {
			defer profile.Start().Stop()
		}
		if err := runCheck(fileName); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringP("inputFile", "F", "", "YAML analysis input file")
	checkCmd.Flags().Bool("profile", false, "write a CPU profile of the check")
}

func runCheck(fileName string) error {
	if fileName == "" {
		return fmt.Errorf("an input file is required, use -F")
	}
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	var params config.Parameters
	if err := params.Parse(data); err != nil {
		return err
	}
	params.Print()

	element, err := newElement(params.CellType)
	if err != nil {
		return err
	}
	cell, err := referenceCell(element, params.Isoparametric)
	if err != nil {
		return err
	}
	if err := cell.AssignQuadrature(params.QuadratureOrder); err != nil {
		return err
	}
	points, err := cell.GeneratePoints()
	if err != nil {
		return err
	}
	fmt.Printf("%8.5f\t\t= Reference cell volume\n", cell.Volume())
	fmt.Printf("%8.5f\t\t= Reference mean length\n", cell.MeanLength())
	fmt.Printf("[%d]\t\t\t\t= Material points per cell\n", len(points))
	for _, p := range points {
		in, _ := cell.IsPointInCell(p)
		if !in {
			return fmt.Errorf("generated point %v escaped its cell", mat.Formatted(p.T()))
		}
	}
	fmt.Println("input file is consistent")
	return nil
}

func newElement(cellType string) (elements.Element, error) {
	switch cellType {
	case "ED3H8":
		return elements.NewHexahedron(8)
	case "ED3H20":
		return elements.NewHexahedron(20)
	case "ED2Q4":
		return elements.NewQuadrilateral(4)
	case "ED2Q8":
		return elements.NewQuadrilateral(8)
	case "ED2Q9":
		return elements.NewQuadrilateral(9)
	case "ED2T3":
		return elements.NewTriangle(3)
	case "ED2T6":
		return elements.NewTriangle(6)
	}
	return nil, fmt.Errorf("unknown cell type %q", cellType)
}

// referenceCell attaches nodes at the element's own reference coordinates.
type checkNode struct {
	id     uint64
	coords *mat.VecDense
}

func (n *checkNode) ID() uint64                      { return n.id }
func (n *checkNode) Coordinates() *mat.VecDense      { return n.coords }
func (n *checkNode) Status() bool                    { return false }
func (n *checkNode) AssignStatus(bool)               {}
func (n *checkNode) AssignMPIRank(int) bool          { return true }
func (n *checkNode) UpdateVolume(bool, int, float64) {}
func (n *checkNode) NonlocalNodeType() []int         { return nil }

func referenceCell(element elements.Element, isoparametric bool) (*cells.Cell, error) {
	cell, err := cells.NewCell(0, element.NFunctions(), element, isoparametric, logrus.StandardLogger())
	if err != nil {
		return nil, err
	}
	unit := element.UnitCellCoordinates()
	n, dim := unit.Dims()
	for i := 0; i < n; i++ {
		coords := mat.NewVecDense(dim, nil)
		for d := 0; d < dim; d++ {
			coords.SetVec(d, unit.At(i, d))
		}
		if err := cell.AddNode(i, &checkNode{id: uint64(i), coords: coords}); err != nil {
			return nil, err
		}
	}
	if err := cell.Initialise(); err != nil {
		return nil, err
	}
	return cell, nil
}
