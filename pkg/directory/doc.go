// Package directory is the member directory: the identity record every
// other governance component consults. It owns the members table and
// the read surface (role lookups, super-admin head count); role writes
// happen only inside the role transition service's transactions.
package directory
