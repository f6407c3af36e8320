// Completion: 100% - Helper module complete
package bridge

import "slices"

// Register split of the i386 cdecl convention (System V and Win32 agree).
// eax, ecx and edx may be clobbered by any call; everything else must
// come back unchanged.

const (
	wordSize = 4

	stackPointer = "esp"

	// holds stack arguments while they are copied in ToAsm
	toAsmScratch = "eax"
	// saved around the call in FromAsm and used to copy stack arguments
	fromAsmScratch = "edx"
)

var callerSavedRegs = []string{"eax", "ecx", "edx"}

// MustPreserve returns true if reg has to be saved and restored around an
// emitted call. Only the caller-saved registers are exempt; unknown names
// are treated as preserved.
func MustPreserve(reg string) bool {
	return !slices.Contains(callerSavedRegs, reg)
}
