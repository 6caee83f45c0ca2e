// Package auth implements the access-control engine: users, teams
// (groups), roles and permissions, the per-user permission cache, and
// the permission evaluator consulted before every sensitive operation.
//
// # Model
//
// Permissions are static codenames ("unit.edit", "project.permissions")
// bundled into roles. Groups bind roles to a scope: an explicit list of
// projects, components or component lists, a wildcard selection over
// all / all public / all protected projects, and an optional language
// restriction. Users gain permissions only through group membership;
// superusers bypass everything.
//
// # Evaluation
//
// Checker.HasPerm dispatches in a fixed order: superuser short-circuit,
// global permissions, registered special handlers for permissions with
// object-specific business rules, then the generic per-target rules.
// Denials are values (false, or a Decision carrying a reason), never
// errors; errors indicate programmer mistakes such as an unknown
// permission codename or an unsupported target type.
//
// # Caching
//
// Each User owns a lazily built permission cache covering its group
// memberships. The cache lives as long as the User value (one request)
// and must be dropped through User.Invalidate whenever memberships,
// roles or blocks change; Store mutation methods do this for the
// affected users they are handed.
package auth
