// Package policy is the safety gate in front of tool execution. It runs
// before argument validation and has no side effects.
package policy

import (
	"fmt"

	"github.com/webmcp/relay/internal/catalog"
	"github.com/webmcp/relay/internal/protocol"
)

// Evaluate decides whether a call to the described tool may proceed. It
// returns nil to proceed, or the terminal envelope error. Rules are checked in
// order: session scope first, then confirmation.
func Evaluate(d protocol.ToolDescriptor, call catalog.CallContext) *protocol.Error {
	if d.SessionScoped && call.SessionID == "" {
		return protocol.NewError(protocol.CodeSessionRequired,
			fmt.Sprintf("Tool %q requires a sessionId.", d.Name))
	}

	if d.RequiresConfirmation && !call.Confirmed {
		return protocol.NewError(protocol.CodeConfirmationRequired,
			fmt.Sprintf("Tool %q requires explicit confirmation (confirmed=true).", d.Name))
	}

	return nil
}
