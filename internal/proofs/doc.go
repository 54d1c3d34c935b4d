// Package proofs builds provenance receipts for digital content.
//
// A receipt binds a content hash and a generator identity (plus an optional
// prompt and parent proof reference) to a deterministic digest chain:
//
//	canonical = RFC 8785 JSON of the present input fields
//	inputHash = sha256(canonical)
//	leaves    = [sha256("leaf-1-salt:" + contentHash), sha256("leaf-2-salt:" + generator)]
//	signature = Signer.Sign(inputHash)
//
// The chain is packaged with an anchor record obtained from an AnchorProvider
// into a ProofReceipt. Digests are SHA-256 over the UTF-8 bytes of their
// input, rendered as lowercase hex.
//
// The default signer is MockSigner. Its "signature" is sha256 of a public
// marker string concatenated with inputHash; it proves nothing about who
// produced the receipt. Deployments that need non-repudiation must configure
// Ed25519Signer or Secp256k1Signer and publish the public key.
//
// The default anchor provider is SimulatedAnchorProvider, which fabricates
// ledger identifiers locally. See package anchor for chain-backed providers.
package proofs
