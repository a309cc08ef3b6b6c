// Package accounts provides account management primitives (credential
// verification, RS256 session tokens, stateful repositories, HTTP handlers)
// for user-facing backends.
//
// Account lifecycle:
//   - Users carry an AccountState field that is persisted via Bun. States
//     cover active, suspended, and disabled flows; disabled is terminal.
//   - AccountStateMachine centralizes the transition graph, suspension
//     windows, and persistence. Invoke Transition with ActorRef metadata
//     whenever an administrator moves an account.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the verifier, the
//     state machine, and the recovery manager to describe login, lifecycle,
//     and password events. Sinks run best-effort (errors are logged) so you
//     can forward to a database or queue without blocking authentication.
//
// Enumeration resistance:
//   - Failed logins and recovery requests answer identically whether the
//     account exists or not. The distinction survives only in audit events.
package accounts
