//go:build korudelta_debug

package korudelta

import (
	"fmt"

	"github.com/swyrknt/korudelta/internal/kerr"
)

// init wires kerr.DebugFatal to panic when the korudelta_debug build tag
// is set, upgrading EngineError to process-fatal in debug builds. Engine
// invariant violations should be unreachable, so a panic during
// development surfaces the violation at its source instead of
// propagating as a downstream KeyNotFound or InvalidData symptom.
func init() {
	kerr.DebugFatal = func(err *kerr.Error) {
		panic(fmt.Sprintf("korudelta: fatal engine invariant violation: %s", err.Message))
	}
}
