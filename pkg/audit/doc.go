// Package audit records who changed access control and when.
//
// Events cover team and role changes, user blocks, invitations and
// access-control transitions. The DBLogger persists to the audit_logs
// table; NopLogger turns auditing off.
package audit
