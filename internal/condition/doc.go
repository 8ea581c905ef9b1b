// Package condition evaluates workflow rule conditions deterministically.
//
// Conditions are written the way generated rules write them:
//
//	($metrics.cpu > 80) AND ($workflow_state.status == "running")
//	NOT $trigger.manual OR has($trigger.tags, "urgent")
//
// Before compilation "$name" references become plain identifiers and the
// upper-case logical keywords become expr operators. Text inside quotes is
// left untouched. Expressions are compiled with expr-lang/expr and cached.
//
// A condition that names an identifier absent from the variables (for
// example a bare word such as running) cannot be decided here; Evaluate
// returns ErrUnresolved so callers can fall back to another evaluator.
package condition
