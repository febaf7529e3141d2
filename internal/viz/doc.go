// Package viz renders a density fit live in the terminal.
//
// The package implements a TUI using the Bubble Tea framework:
//
//   - [Model]: steps a fitting session and draws the structure against its target
//   - [Picker]: preset selection in front of a [Model]
//   - [Canvas]: Braille-based pixel canvas
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Restart from the perturbed structure
//	T     - Cycle color themes
//	X/Y/Z - Rotate the view (shift reverses)
//	+/-   - Zoom
//	F/S   - More or fewer steps per frame
//	?     - Show help overlay
//	Q     - Quit
package viz
