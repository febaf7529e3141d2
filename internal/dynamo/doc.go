// Package dynamo provides the shared primitives of the density fitting engine.
//
// The package defines the types exchanged between the force providers, the
// step driver and the collective communication layer:
//
//   - [Vec3]: a 3-vector in lab or lattice coordinates
//   - [Atoms]: per-particle metadata consumed by amplitude lookups
//   - [ForceProvider]: a per-step force and energy contribution
//   - [Communicator]: a handle on the cooperating process group
//
// # Example
//
//	out := dynamo.ForceProviderOutput{Forces: forces, Energies: &energies}
//	in := dynamo.ForceProviderInput{X: x, Atoms: atoms, Comm: reduce.Single(), Step: step}
//	if err := provider.CalculateForces(in, &out); err != nil {
//		return err
//	}
//
// # Thread Safety
//
// Output buffers are only ever added to. Several providers may write into the
// same force array concurrently as long as they own disjoint particle indices.
package dynamo
