// Package policy gates capability calls with Rego policies evaluated
// through OPA. Every capability dispatch builds an input document
// holding the machine, the resolved guest and the capability name, and
// any policy deny with error severity blocks the call.
//
// Policies load from .rego files (one policy per file, deny rules in
// any package) or .json policy documents, on top of a small built-in
// set. A loader can watch the policy directory and hot-reload on
// change.
package policy
