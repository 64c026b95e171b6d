/*
Package account implements the upstream account pool for ZaiGate.

Each upstream identity is represented by an Account carrying its bearer
token, expiry, and health state. The Pool is the single shared mutable
structure in the request hot path: it hands out accounts round-robin across
healthy, token-valid entries, absorbs classified failure reports from the
proxy, and signals the token lifecycle manager when an account needs an
immediate refresh.

Mutations are serialized per account, so concurrent requests touching
different accounts never block each other.
*/
package account
