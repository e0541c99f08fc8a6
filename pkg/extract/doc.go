// Package extract pulls structured fields out of free-form model text.
//
// Two modes are supported:
//   - tag blocks: an <output> element holding one <key>value</key> child per
//     field ([TagBlock]);
//   - JSON blocks: a JSON object possibly wrapped in thinking output, code
//     fences or commentary ([JSONBlock]).
//
// Extraction never checks which keys were expected; [Validate] does that
// against the requested [Field] set.
package extract
