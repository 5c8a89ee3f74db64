// Package safe deploys single-owner Safe accounts and configures allowance
// module spending limits on them.
//
// Every call threads two nonce sequences: the Safe's own nonce, which is
// bound into each signed Safe transaction, and the owner EOA nonce used for
// the outer transactions. A freshly deployed Safe starts at 0; otherwise the
// chain is asked once per call and later transactions count locally.
package safe
