// Package storage moves payloads that are too large for a ledger message
// onto content-addressed storage and hands back a short reference.
//
// # Backends
//
// Lighthouse (Filecoin), primary:
//   - Upload via the node API with a Bearer api key (LIGHTHOUSE_API_KEY)
//   - Fetch via the public HTTP gateway (LIGHTHOUSE_URL)
//   - Content id format: <cid> (filecoin://<cid> is also accepted)
//
// IPFS (Kubo HTTP RPC), secondary:
//   - Upload with `ipfs add`, fetch with `ipfs cat` (IPFS_URL)
//   - Content id format: ipfs://<cid>/<filename>
//
// # Offloading
//
//	off := storage.New(cfg.Storage, cfg.Timeouts)
//	id, err := off.Upload(ctx, map[string]any{"prompt": "..."})
//	if err != nil {
//		// faults.KindOffloadFailed; faults.HintOf(err) says which backend to fix
//	}
//	raw, err := off.Fetch(ctx, id.String())
//
// Payloads are serialized as canonical JSON and named
// payload-<first 12 hex chars of sha256>.json, so uploading the same payload
// twice yields the same CID.
package storage
