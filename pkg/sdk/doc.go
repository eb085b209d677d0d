// Package sdk is the high-level entry point of the custody core.
//
// A Core signs and submits ledger transactions on behalf of tenants without
// ever holding their keys in memory longer than one operation. Tenant keys
// are stored encrypted with the vault master key; when a tenant has none the
// process-wide operator account signs instead.
//
// # Quick Start
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	core, err := sdk.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer core.Close()
//
//	res, err := core.SubmitMessage(ctx, model.SubmitMessageRequest{
//		TopicID: "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4",
//		Payload: json.RawMessage(`{"score":0.93}`),
//	}, "tenant-a")
//
// # Architecture
//
// Core coordinates several subsystems:
//
//   - Vault and credential store: AES-256-GCM envelope encryption over Postgres, SQLite or memory
//   - Signer resolver: tenant credential first, operator account second
//   - Blockchain pipeline: build, freeze, sign, submit and wait for the receipt
//   - Storage: Lighthouse with a local IPFS node as fallback for large payloads
//   - Payment: verification and exactly-once settlement through a facilitator
package sdk
