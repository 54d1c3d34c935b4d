// Package web3 houses blockchain connectivity for anchoring proof digests:
// chain definitions loaded from YAML, a provider registry, and an EVM client
// that records a 32-byte digest in a zero-value self transaction.
package web3
