package allocator

import (
	"strings"

	"github.com/pikern/kheap/arena"
	"github.com/pikern/kheap/bins"
	"golang.org/x/exp/slices"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DumpBins returns a human readable listing of every non-empty bin and the blocks on it,
// followed by the physical block layout of the arena
func (a *Allocator) DumpBins() string {
	state := a.enter()
	defer a.leave(state)

	printer := message.NewPrinter(language.English)
	var builder strings.Builder

	printer.Fprintf(&builder, "heap at %#x: %d bytes, %d allocations, %d free blocks, %d free bytes\n",
		a.arena.Base(), a.arena.Size(), a.allocCount, a.bins.Len(), a.bins.FreeBytes())

	for class := 0; class < bins.NumBins; class++ {
		if a.bins.ClassLen(class) == 0 {
			continue
		}

		var offsets []int
		for ref := a.bins.Head(class); ref != arena.NilOffset; ref = a.bins.Next(ref) {
			offsets = append(offsets, ref)
		}
		slices.Sort(offsets)

		printer.Fprintf(&builder, "bin %2d [%d, %d]: %d blocks\n",
			class, bins.ClassFloor(class), bins.ClassCeiling(class), len(offsets))
		for _, offset := range offsets {
			printer.Fprintf(&builder, "    %#x: %d bytes\n", uintptr(a.arena.PointerAt(offset)), a.arena.UsableSizeAt(offset))
		}
	}

	builder.WriteString("blocks:\n")
	_ = a.arena.Walk(func(block arena.Block) error {
		printer.Fprintf(&builder, "    %#x %-9s usable %d padding %d\n",
			uintptr(a.arena.PointerAt(block.Start)), block.State, block.UsableSize, block.Padding)
		return nil
	})

	return builder.String()
}
