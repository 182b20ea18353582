package rules

import (
	"github.com/715d/classflow/pkg/ir"
)

// ReturnInFinallyID reports returns inside finally blocks.
const ReturnInFinallyID = "RETURN_IN_FINALLY"

const returnInFinallyMessage = "Return in finally overrides exceptions or prior returns. " +
	"Move the return outside the finally block or return after the try/finally."

type returnInFinally struct{}

func (*returnInFinally) ID() string { return ReturnInFinallyID }

// Check reports every return instruction in a block owned by a catch-all
// handler. A return shared by several finally handlers is reported once.
func (*returnInFinally) Check(rc Context) ([]Finding, error) {
	return forEachMethod(rc, func(_ *ir.Class, m *ir.Method) []Finding {
		g := graphOf(rc, ReturnInFinallyID, m)
		if g == nil {
			return nil
		}
		finally := g.FinallyHandlers()
		if len(finally) == 0 {
			return nil
		}
		var out []Finding
		for _, b := range g.Blocks {
			if !b.Reachable || len(b.Instructions) == 0 {
				continue
			}
			last := b.Last()
			if last.Op.Category() != ir.CatReturn {
				continue
			}
			for _, h := range finally {
				if b.OwnedBy(h) {
					out = append(out, newFinding(ReturnInFinallyID, m, last.Offset, returnInFinallyMessage))
					break
				}
			}
		}
		return out
	}), nil
}
