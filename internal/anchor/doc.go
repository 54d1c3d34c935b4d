// Package anchor provides proofs.AnchorProvider implementations backed by
// real ledgers, and a failover wrapper that tries several providers in turn.
package anchor
