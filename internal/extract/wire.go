package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ashureev/voicetask/internal/domain"
)

var errEmptyDelta = errors.New("empty delta")

// wireDelta mirrors the extraction response loosely: extractors built on
// language models send numbers as strings, nulls and stray types.
type wireDelta struct {
	Intent      string          `json:"intent"`
	SlotUpdates wireSlots       `json:"slot_updates"`
	Ambiguous   []string        `json:"ambiguous"`
	Notes       json.RawMessage `json:"notes"`
}

type wireSlots struct {
	AssignedChildID   json.RawMessage `json:"assignedChildId"`
	AssignedChildName json.RawMessage `json:"assignedChildName"`
	Title             json.RawMessage `json:"title"`
	DueText           json.RawMessage `json:"dueText"`
	DueISO            json.RawMessage `json:"dueIso"`
	Points            json.RawMessage `json:"points"`
}

// DecodeDelta parses an extraction response body into a SlotDelta.
// Unreadable field values are dropped; an unreadable document is an error.
func DecodeDelta(data []byte) (domain.SlotDelta, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return domain.SlotDelta{}, errEmptyDelta
	}

	var w wireDelta
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.SlotDelta{}, fmt.Errorf("decode delta: %w", err)
	}

	intent := domain.Intent(strings.ToLower(strings.TrimSpace(w.Intent)))
	if intent == "" {
		intent = domain.IntentNoop
	}
	return domain.SlotDelta{
		Intent: intent,
		SlotUpdates: domain.SlotUpdates{
			AssignedChildID:   flexString(w.SlotUpdates.AssignedChildID),
			AssignedChildName: flexString(w.SlotUpdates.AssignedChildName),
			Title:             flexString(w.SlotUpdates.Title),
			DueText:           flexString(w.SlotUpdates.DueText),
			DueISO:            flexString(w.SlotUpdates.DueISO),
			Points:            flexInt(w.SlotUpdates.Points),
		},
		Ambiguous: w.Ambiguous,
		Notes:     derefOrEmpty(flexString(w.Notes)),
	}, nil
}

// EncodeDelta renders a delta in the wire shape accepted by DecodeDelta.
func EncodeDelta(d domain.SlotDelta) ([]byte, error) {
	return json.Marshal(d)
}

func flexString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v := n.String()
		return &v
	}
	return nil
}

func flexInt(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return roundInt(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return roundInt(f)
		}
	}
	return nil
}

func roundInt(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	v := int(math.Round(f))
	return &v
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
