package rules

import (
	"encoding/binary"
	"log/slog"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/715d/classflow/pkg/cfg"
	"github.com/715d/classflow/pkg/dataflow"
	"github.com/715d/classflow/pkg/ir"
)

// CauseNotPreservedID reports exceptions thrown from a catch handler that
// drop the caught exception.
const CauseNotPreservedID = "EXCEPTION_CAUSE_NOT_PRESERVED"

const causeNotPreservedMessage = "Catch handler throws a new exception without preserving the original cause; " +
	"pass the caught exception as a cause or call initCause/addSuppressed before throwing."

const (
	causeMaxStack    = 24
	causeMaxTracked  = 4
	throwableArgDesc = "(Ljava/lang/Throwable;)"
)

type causeKind uint8

const (
	causeOther causeKind = iota
	causeCaught
	causeFresh
)

// cause is the abstract value of the rule: the exception caught by a typed
// handler, an exception allocated at site, or anything else.
type cause struct {
	kind      causeKind
	site      int
	preserved bool
}

type causeDomain struct{}

func (causeDomain) Unknown() cause { return cause{} }

// Join keeps a fresh exception when both sides hold the same allocation; it
// is preserved only when preserved on both paths.
func (causeDomain) Join(a, b cause) cause {
	switch {
	case a == b:
		return a
	case a.kind == causeFresh && b.kind == causeFresh && a.site == b.site:
		return cause{kind: causeFresh, site: a.site}
	}
	return cause{}
}

func (causeDomain) Equal(a, b cause) bool { return a == b }

func (causeDomain) Hash(d *xxhash.Digest, v cause) {
	var buf [6]byte
	buf[0] = byte(v.kind)
	if v.preserved {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:], uint32(int32(v.site)))
	_, _ = d.Write(buf[:])
}

type causeAnalysis struct {
	causeDomain

	// sites are the tracked allocation offsets.
	sites map[int]bool
}

func newCauseAnalysis(m *ir.Method) *causeAnalysis {
	a := &causeAnalysis{sites: make(map[int]bool)}
	for i := range m.Instructions {
		if len(a.sites) == causeMaxTracked {
			break
		}
		if ins := &m.Instructions[i]; ins.Op == ir.OpNew {
			a.sites[ins.Offset] = true
		}
	}
	return a
}

func (a *causeAnalysis) Entry(*ir.Method, *dataflow.Frame[cause]) {}

func (a *causeAnalysis) Produce(ins *ir.Instruction, args []cause) (cause, bool) {
	switch {
	case ins.Op == ir.OpNew && a.sites[ins.Offset]:
		return cause{kind: causeFresh, site: ins.Offset}, true
	case ins.Op == ir.OpInvokevirtual && ins.Ref != nil && ins.Ref.Name == "initCause":
		// initCause returns its receiver.
		if len(args) == 2 {
			return preserve(args[0], args[1:]), true
		}
	}
	return cause{}, false
}

func (a *causeAnalysis) Caught(h ir.ExceptionHandler) cause {
	if h.CatchType == "" {
		return cause{}
	}
	return cause{kind: causeCaught}
}

// Effect marks every copy of a fresh exception preserved once the caught
// exception reaches its constructor, initCause or addSuppressed.
func (a *causeAnalysis) Effect(ins *ir.Instruction, args []cause, f *dataflow.Frame[cause]) {
	if ins.Ref == nil || len(args) < 2 || args[0].kind != causeFresh || args[0].preserved {
		return
	}
	switch {
	case ins.Op == ir.OpInvokespecial && ins.Ref.Name == "<init>":
	case ins.Op == ir.OpInvokevirtual && (ins.Ref.Name == "initCause" || ins.Ref.Name == "addSuppressed") &&
		strings.HasPrefix(ins.Ref.Descriptor, throwableArgDesc):
	default:
		return
	}
	marked := preserve(args[0], args[1:])
	if !marked.preserved {
		return
	}
	fresh := args[0]
	f.Replace(func(v cause) cause {
		if v == fresh {
			return marked
		}
		return v
	})
}

func preserve(receiver cause, args []cause) cause {
	if receiver.kind != causeFresh {
		return receiver
	}
	if slices.ContainsFunc(args, func(v cause) bool { return v.kind == causeCaught }) {
		receiver.preserved = true
	}
	return receiver
}

type causeNotPreserved struct{}

func (*causeNotPreserved) ID() string { return CauseNotPreservedID }

// Check runs the cause flow over every method with a typed handler and
// reports each athrow inside handler code whose operand is a fresh exception
// the caught one never reached.
func (*causeNotPreserved) Check(rc Context) ([]Finding, error) {
	limits := rc.Limits()
	limits.MaxStack = causeMaxStack
	return forEachMethod(rc, func(_ *ir.Class, m *ir.Method) []Finding {
		var typed []int
		for _, h := range m.Handlers {
			if h.CatchType != "" && !slices.Contains(typed, h.Handler) {
				typed = append(typed, h.Handler)
			}
		}
		if len(typed) == 0 {
			return nil
		}
		g := graphOf(rc, CauseNotPreservedID, m)
		if g == nil {
			return nil
		}
		r, err := dataflow.Solve[cause](g, newCauseAnalysis(m), limits)
		if err != nil {
			slog.Debug("cause flow failed", "method", m.String(), "error", err)
			return nil
		}
		var out []Finding
		r.Replay(func(b *cfg.Block, ins *ir.Instruction, before *dataflow.Frame[cause]) {
			if ins.Op.Category() != ir.CatThrow {
				return
			}
			if !slices.ContainsFunc(typed, b.OwnedBy) {
				return
			}
			if v := before.Peek(0); v.kind == causeFresh && !v.preserved {
				out = append(out, newFinding(CauseNotPreservedID, m, ins.Offset, causeNotPreservedMessage))
			}
		})
		return out
	}), nil
}
