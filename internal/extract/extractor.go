// Package extract implements the slot extraction contract: one utterance plus
// the current slot state in, one structured SlotDelta out.
package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/voicetask/internal/domain"
)

// Request is the input of one extraction call.
type Request struct {
	Utterance    string          `json:"utterance"`
	Slots        domain.Slots    `json:"currentSlots"`
	ExpectedSlot domain.SlotName `json:"expectedSlot,omitempty"`
	Roster       []domain.Child  `json:"roster"`
}

// Extractor turns an utterance into a SlotDelta.
// Implementations are the gRPC client, the LLM client and the rule extractor.
type Extractor interface {
	Extract(ctx context.Context, req Request) (domain.SlotDelta, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, req Request) (domain.SlotDelta, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, req Request) (domain.SlotDelta, error) {
	return f(ctx, req)
}

// Safe calls ex and never fails: errors, panics and unknown intents all
// degrade to a noop delta so the dialogue can re-ask the expected slot.
func Safe(ctx context.Context, ex Extractor, req Request) (delta domain.SlotDelta) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Extractor panicked, falling back to noop", "panic", fmt.Sprint(r))
			delta = domain.NoopDelta()
		}
	}()

	if ex == nil {
		return domain.NoopDelta()
	}
	out, err := ex.Extract(ctx, req)
	if err != nil {
		slog.Warn("Extraction failed, falling back to noop", "error", err, "expected_slot", req.ExpectedSlot)
		return domain.NoopDelta()
	}
	if !out.Intent.Valid() {
		slog.Warn("Extractor returned unknown intent, falling back to noop", "intent", out.Intent)
		return domain.NoopDelta()
	}
	return out
}
