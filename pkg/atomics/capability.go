package atomics

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/srediag/shm-atomics/pkg/shm"
)

// Capabilities lists the operations a target runs with native instructions,
// separately for cells of up to 32 bits and for 64-bit cells. Everything else
// goes through the Runtime.
type Capabilities struct {
	Narrow OpSet
	Wide   OpSet
}

// FullCapabilities runs every operation inline.
var FullCapabilities = Capabilities{Narrow: AllOps, Wide: AllOps}

var (
	loadStore         = NewOpSet(OpLoad, OpStore)
	loadStoreExchange = NewOpSet(OpLoad, OpStore, OpExchange)
)

// capabilityTable holds the targets that lack native support for some
// operations. Keep it in step with the code generators of those ports.
var capabilityTable = map[string]Capabilities{
	"mips":     {Narrow: loadStore},
	"mipsle":   {Narrow: loadStore},
	"mips64":   {Narrow: loadStore, Wide: loadStore},
	"mips64le": {Narrow: loadStore, Wide: loadStore},
	"riscv64":  {Narrow: loadStore, Wide: loadStore},
	"ppc64":    {Narrow: loadStoreExchange, Wide: loadStoreExchange},
	"ppc64le":  {Narrow: loadStoreExchange, Wide: loadStoreExchange},
	"s390x":    {Narrow: loadStoreExchange, Wide: loadStoreExchange},
}

// CapabilitiesFor returns the capabilities of a GOARCH.
func CapabilitiesFor(goarch string) Capabilities {
	if c, ok := capabilityTable[goarch]; ok {
		return c
	}
	return FullCapabilities
}

// HostCapabilities returns the capabilities of the running GOARCH.
func HostCapabilities() Capabilities {
	return CapabilitiesFor(runtime.GOARCH)
}

// Inline reports whether op on kind runs natively.
func (c Capabilities) Inline(op Op, kind shm.ElementKind) bool {
	if kind.IsWide() {
		return c.Wide.Has(op)
	}
	return c.Narrow.Has(op)
}

func (c Capabilities) String() string {
	return fmt.Sprintf("narrow=%s wide=%s", c.Narrow, c.Wide)
}

// Strategy selects between native instructions and the Runtime.
type Strategy int

const (
	// StrategyAuto follows the capability table.
	StrategyAuto Strategy = iota
	// StrategyInline runs every operation natively.
	StrategyInline
	// StrategyCallOut sends every operation to the Runtime.
	StrategyCallOut
)

var strategyNames = []string{"auto", "inline", "callout"}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

func (s Strategy) Valid() bool { return s >= StrategyAuto && s <= StrategyCallOut }

// ParseStrategy is the inverse of Strategy.String.
func ParseStrategy(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if strings.EqualFold(name, s) {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// effective folds a strategy into the capabilities it stands for.
func (s Strategy) effective(c Capabilities) Capabilities {
	switch s {
	case StrategyInline:
		return FullCapabilities
	case StrategyCallOut:
		return Capabilities{}
	}
	return c
}
