// Package circuit implements the arithmetic-circuit proof backend on top of
// gnark's groth16 prover over BN254. The circuit restates the commitment
// layer's computation: it recomputes every record leaf with MiMC, rebuilds
// the Merkle root, and constrains the digest chaining between consecutive
// records. Public inputs are the commitment root and the pipeline's first
// input and last output digests; everything else stays private to the node.
package circuit

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// pipelineCircuit proves knowledge of trace records hashing to the public
// root while chaining input digests to previous output digests. The slice
// lengths fix the circuit shape: one compiled circuit per record count.
type pipelineCircuit struct {
	Root       frontend.Variable `gnark:",public"`
	FirstInput frontend.Variable `gnark:",public"`
	LastOutput frontend.Variable `gnark:",public"`

	Indices   []frontend.Variable `gnark:",secret"`
	Stages    []frontend.Variable `gnark:",secret"`
	Inputs    []frontend.Variable `gnark:",secret"`
	Outputs   []frontend.Variable `gnark:",secret"`
	Witnesses []frontend.Variable `gnark:",secret"`
}

func newPipelineCircuit(records int) *pipelineCircuit {
	return &pipelineCircuit{
		Indices:   make([]frontend.Variable, records),
		Stages:    make([]frontend.Variable, records),
		Inputs:    make([]frontend.Variable, records),
		Outputs:   make([]frontend.Variable, records),
		Witnesses: make([]frontend.Variable, records),
	}
}

// Define declares the constraints. The leaf and tree hashing must stay in
// lockstep with the native computation in the commit package.
func (c *pipelineCircuit) Define(api frontend.API) error {
	n := len(c.Inputs)

	api.AssertIsEqual(c.Inputs[0], c.FirstInput)
	api.AssertIsEqual(c.Outputs[n-1], c.LastOutput)
	for i := 1; i < n; i++ {
		api.AssertIsEqual(c.Inputs[i], c.Outputs[i-1])
	}

	width := 2
	for width < n {
		width <<= 1
	}
	level := make([]frontend.Variable, width)
	for i := 0; i < n; i++ {
		h, err := mimc.NewMiMC(api)
		if err != nil {
			return err
		}
		h.Write(c.Indices[i], c.Stages[i], c.Inputs[i], c.Outputs[i], c.Witnesses[i])
		level[i] = h.Sum()
	}
	for i := n; i < width; i++ {
		level[i] = 0
	}

	for len(level) > 1 {
		next := make([]frontend.Variable, len(level)/2)
		for i := range next {
			h, err := mimc.NewMiMC(api)
			if err != nil {
				return err
			}
			h.Write(level[2*i], level[2*i+1])
			next[i] = h.Sum()
		}
		level = next
	}
	api.AssertIsEqual(level[0], c.Root)

	return nil
}
