// Package auth is the broker's login and ACL authorization surface: a
// Backend loads credentials and access rules from wherever they are
// replicated, and a Driver layers the login/publish/subscribe decisions
// spec section 7's authorization path requires on top of a Backend,
// matching the original implementation's AuthStorageAdapter/AuthDriver
// split in security/mod.rs.
package auth
