// Package qualify contains the pure domain logic behind lead
// qualification: natural-language budget parsing, free-text location
// matching against the area taxonomy, and the weighted lead score.
//
// Everything in this package is deterministic and side-effect free; the
// tool registry wraps these functions for the agent.
package qualify
