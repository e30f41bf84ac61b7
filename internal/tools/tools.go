// Package tools holds the built-in reference tools exposed by the relay.
package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/webmcp/relay/internal/catalog"
	"github.com/webmcp/relay/internal/protocol"
)

// MaxNoteLength is the longest note append_note accepts, in characters.
const MaxNoteLength = 500

// NoteStore is the session state the note tools operate on.
type NoteStore interface {
	Append(ctx context.Context, sessionID, text string) int
	List(sessionID string) []string
	Clear(ctx context.Context, sessionID string) int
}

// Builtins returns the reference tools in catalog order. now may be nil, in
// which case time.Now is used.
func Builtins(notes NoteStore, now func() time.Time) []catalog.Tool {
	if now == nil {
		now = time.Now
	}
	return []catalog.Tool{
		echo(),
		sum(),
		nowUTC(now),
		appendNote(notes),
		listNotes(notes),
		clearNotes(notes),
	}
}

func echo() catalog.Tool {
	return catalog.Tool{
		Descriptor: protocol.ToolDescriptor{
			Name:        "echo",
			Description: "Return the provided text unchanged.",
			Input:       map[string]protocol.Kind{"text": protocol.KindString},
			SideEffect:  protocol.SideEffectRead,
		},
		Execute: func(_ context.Context, args catalog.Args, _ catalog.CallContext) (any, error) {
			return map[string]any{"text": args.String("text")}, nil
		},
	}
}

func sum() catalog.Tool {
	return catalog.Tool{
		Descriptor: protocol.ToolDescriptor{
			Name:        "sum",
			Description: "Add two numbers and return the total.",
			Input: map[string]protocol.Kind{
				"a": protocol.KindNumber,
				"b": protocol.KindNumber,
			},
			SideEffect: protocol.SideEffectRead,
		},
		// The total must stay representable in JSON.
		Check: func(args catalog.Args) error {
			if math.IsInf(args.Number("a")+args.Number("b"), 0) {
				return errors.New("sum of a and b overflows")
			}
			return nil
		},
		Execute: func(_ context.Context, args catalog.Args, _ catalog.CallContext) (any, error) {
			return map[string]any{"value": args.Number("a") + args.Number("b")}, nil
		},
	}
}

func nowUTC(now func() time.Time) catalog.Tool {
	return catalog.Tool{
		Descriptor: protocol.ToolDescriptor{
			Name:        "now_utc",
			Description: "Return the current UTC time as an ISO-8601 string.",
			Input:       map[string]protocol.Kind{},
			SideEffect:  protocol.SideEffectRead,
		},
		Execute: func(context.Context, catalog.Args, catalog.CallContext) (any, error) {
			return map[string]any{"iso": now().UTC().Format("2006-01-02T15:04:05.000Z07:00")}, nil
		},
	}
}

func appendNote(notes NoteStore) catalog.Tool {
	return catalog.Tool{
		Descriptor: protocol.ToolDescriptor{
			Name:                 "append_note",
			Description:          "Append a short note to the current session.",
			Input:                map[string]protocol.Kind{"text": protocol.KindString},
			SideEffect:           protocol.SideEffectWrite,
			RequiresConfirmation: true,
			SessionScoped:        true,
		},
		Check: func(args catalog.Args) error {
			n := utf8.RuneCountInString(args.String("text"))
			if n < 1 || n > MaxNoteLength {
				return fmt.Errorf("text must be 1-%d characters", MaxNoteLength)
			}
			return nil
		},
		Execute: func(ctx context.Context, args catalog.Args, call catalog.CallContext) (any, error) {
			count := notes.Append(ctx, call.SessionID, args.String("text"))
			return map[string]any{"count": count}, nil
		},
	}
}

func listNotes(notes NoteStore) catalog.Tool {
	return catalog.Tool{
		Descriptor: protocol.ToolDescriptor{
			Name:          "list_notes",
			Description:   "List the notes stored for the current session.",
			Input:         map[string]protocol.Kind{},
			SideEffect:    protocol.SideEffectRead,
			SessionScoped: true,
		},
		Execute: func(_ context.Context, _ catalog.Args, call catalog.CallContext) (any, error) {
			return map[string]any{"notes": notes.List(call.SessionID)}, nil
		},
	}
}

func clearNotes(notes NoteStore) catalog.Tool {
	return catalog.Tool{
		Descriptor: protocol.ToolDescriptor{
			Name:                 "clear_notes",
			Description:          "Delete every note stored for the current session.",
			Input:                map[string]protocol.Kind{},
			SideEffect:           protocol.SideEffectSensitive,
			RequiresConfirmation: true,
			SessionScoped:        true,
		},
		Execute: func(ctx context.Context, _ catalog.Args, call catalog.CallContext) (any, error) {
			return map[string]any{"cleared": notes.Clear(ctx, call.SessionID)}, nil
		},
	}
}
