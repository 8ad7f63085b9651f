// Package exception keeps panics in background work from taking the node
// down unnoticed: each recovered panic is logged with its stack and counted
// under the component that raised it.
package exception

import (
	"fmt"
	"runtime/debug"

	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/monitoring"
)

func report(component string, r interface{}) {
	logx.Error("PANIC", fmt.Sprintf("recovered in %s: %v\n%s", component, r, debug.Stack()))
	monitoring.IncreasePanicCount(component)
}

// SafeGo runs fn on a new goroutine owned by component.
func SafeGo(component string, fn func()) {
	go func() {
		defer Recover(component)
		fn()
	}()
}

// Recover must be deferred directly. It is used on goroutines the node does
// not start itself, such as libp2p stream handlers.
func Recover(component string) {
	if r := recover(); r != nil {
		report(component, r)
	}
}
