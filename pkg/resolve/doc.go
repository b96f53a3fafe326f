// Package resolve rewrites reference tokens embedded in configuration
// documents into concrete values.
//
// A document is a decoded JSON tree (maps, slices, scalars). Each pass walks
// the tree and rewrites string leaves that match one token grammar:
//
//	vault:<secret>.<field...>   value from the secrets vault
//	inventory:<path...>         value from the inventory document
//	config:<path...>            value from the document itself
//	vm:id:<label>, lxc:id:<label>   freshly reserved VM ID
//	ip:<network>:<label>        freshly reserved static IP
//	host:ip                     address of the build host on a network
//
// Passes run in that order and are idempotent: a pass over an already
// resolved document finds no matches and changes nothing. Resolution is
// deterministic; the same document, inventory, vault snapshot, and parent
// config always produce the same output.
//
// Lookup misses in the vault, inventory, and config passes are skipped
// silently, leaving the token in place; vaults are routinely only partially
// populated. CheckResolved flags any token that survives to a boundary that
// requires a fully concrete document.
package resolve
