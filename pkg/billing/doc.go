// Package billing ties projects to paid plans. The permission
// evaluator consults it for two questions: is this project paid, and
// may it change its access control.
package billing
