// Package blockchain provides the ledger side of the custody service.
//
// # Clients
//
// EVMClient wraps a ChainClient (normally *ethclient.Client) together with
// the chain id it serves and the configured timeouts. Dial connects and
// checks that the node serves the requested network; a Dialer is handed to
// the signer resolver so every resolution opens its own client.
//
// # Pipeline
//
// Every write goes through the same stages, strictly in order:
//
//	BUILT -> FROZEN -> SIGNED -> SUBMITTED -> RECEIPTED
//
// A Builder produces a Draft (recipient, value, calldata). Freeze reads the
// nonce, fee suggestion and gas estimate and returns an unsigned EIP-1559
// transaction; nothing mutates it afterwards. SignTx signs it for the
// client's chain, SendTransaction submits it and WaitForTransaction polls
// for the receipt with exponential backoff.
//
// Builders:
//
//	SubmitMessage  - calldata to a topic address, result carries TopicID and SequenceNumber
//	Transfer       - two signed deltas that must net to zero
//	CreateAccount  - fresh key pair funded with an initial balance
//	SignedBytes    - base64 envelope of a transaction signed elsewhere (skips freeze and sign)
//
// Failure semantics:
//
//   - a reverted receipt is a Result with Status REVERTED and no error
//   - the node refusing the transaction is LEDGER_REJECTED
//   - a failure or deadline after submission is OUTCOME_UNKNOWN; Result.TxID
//     is set so callers can look the transaction up
//
// # Units
//
// One display coin is 10^18 wei. ToSmallestUnit, FromSmallestUnit and
// ParseAmount convert exactly using decimal shifts, never floats.
//
// # Signatures
//
// GetSignature produces an EIP-191 personal-sign signature over
// keccak256(message); RecoverSigner inverts it.
package blockchain
