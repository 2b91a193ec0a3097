// Package signalbus constructs, publishes, and fans out Signal events.
package signalbus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// glyphs map a signal type's rough category to a single display glyph for
// the formatted, human-readable string.
var glyphs = map[string]string{
	"route":       "→",
	"webhook":     "⇐",
	"auth":        "⚿",
	"config":      "⚙",
	"node":        "◉",
	"budget":      "⚠",
	"rate_limit":  "⧗",
	"rate_limited": "⧗",
	"signal":      "✕",
	"pr":          "⎇",
	"issue":       "⚑",
	"payment":     "$",
	"deploy":      "▲",
}

// New builds a Signal with a deterministic ID derived from
// (type, source, timestamp_ms, body_hash), per spec.md §3 — collision
// resistant within a single millisecond for a given (type, source) pair.
func New(typ models.SignalType, source, target string, timestampMs int64, data map[string]interface{}) models.Signal {
	s := models.Signal{
		Type:      typ,
		Source:    source,
		Target:    target,
		Timestamp: timestampMs,
		Data:      data,
	}
	s.ID = deriveID(s)
	s.Formatted = format(s)
	return s
}

func deriveID(s models.Signal) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s", s.Type, s.Source, s.Timestamp, bodyHash(s.Data))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// bodyHash produces a stable hash of the data map regardless of Go's
// randomized map iteration order.
func bodyHash(data map[string]interface{}) string {
	if len(data) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, data[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// format produces the single-line human string
// "<glyph> <source> → <target> : <type>[, k=v, …]" per spec.md §3.
func format(s models.Signal) string {
	glyph := glyphForType(string(s.Type))
	target := s.Target
	if target == "" {
		target = "ALL"
	}

	var extras strings.Builder
	if len(s.Data) > 0 {
		keys := make([]string, 0, len(s.Data))
		for k := range s.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&extras, ", %s=%v", k, s.Data[k])
		}
	}

	return fmt.Sprintf("%s %s → %s : %s%s", glyph, s.Source, target, s.Type, extras.String())
}

func glyphForType(typ string) string {
	prefix := typ
	if i := strings.IndexByte(typ, '.'); i >= 0 {
		prefix = typ[:i]
	}
	if g, ok := glyphs[prefix]; ok {
		return g
	}
	return "•"
}
