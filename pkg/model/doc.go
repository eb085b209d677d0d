// Package model defines the requests accepted by the custody core.
//
// Each operation has a Kind and a JSON schema. Tool calls arrive as
// (kind, raw JSON) and are decoded exactly once with Decode, which
// validates the document against the schema before unmarshalling it into
// the typed request:
//
//	req, err := model.Decode("transfer", []byte(`{"to":"0x…","amount":"1.5"}`))
//	if err != nil {
//		// faults.KindInvalidInput, message lists every schema violation
//	}
//	t := req.(*model.TransferRequest)
//
// Amounts are decimal strings in whole coins; the blockchain package
// converts them to smallest units.
package model
