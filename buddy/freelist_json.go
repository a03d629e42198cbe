package buddy

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/simutils/pagepool"
)

// PrintDetailedMap populates a json object with the engine's totals and the full free-block
// layout, one array entry per order. Walking every list makes this slow relative to the
// allocation paths and it should generally only be used for diagnostic purposes.
func (l *FreeList) PrintDetailedMap(writer *jwriter.Writer) {
	objState := writer.Object()
	defer objState.End()

	objState.Name("TotalPages").Int(int(l.totalPages))
	objState.Name("TrackedPages").Int(int(l.TrackedPages()))
	objState.Name("UntrackedPages").Int(int(l.UntrackedPages()))
	objState.Name("FreePages").Int(int(l.freePages))
	objState.Name("FreeBlocks").Int(l.freeBlocks)

	ordersState := objState.Name("Orders").Array()
	defer ordersState.End()

	for order := 0; order <= pagepool.MaxOrder; order++ {
		orderObj := ordersState.Object()

		orderObj.Name("Order").Int(order)
		orderObj.Name("BlockPages").Int(int(pagepool.PagesForOrder(order)))

		blocksState := orderObj.Name("FreeBlocks").Array()
		for b := l.listHeads[order]; b != nil; b = b.nextFree {
			blockObj := blocksState.Object()
			blockObj.Name("Offset").Int(int(b.offset))
			blockObj.End()
		}
		blocksState.End()

		orderObj.End()
	}
}
