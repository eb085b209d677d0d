package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	a := Init()
	b := Init()
	if a != b {
		t.Fatal("Init returned different registries")
	}
}

func TestCollectorsAreRegistered(t *testing.T) {
	reg := Init()
	OffloadUploadTotal.WithLabelValues("ipfs", "success").Inc()
	SignerResolutionsTotal.WithLabelValues("operator", "resolved").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"snet_custody_offload_upload_total",
		"snet_custody_signer_resolutions_total",
	} {
		if !names[want] {
			t.Fatalf("metric %s not gathered", want)
		}
	}
}

func TestCounterIncrements(t *testing.T) {
	c := PaymentDecisionsTotal.WithLabelValues("false", "network_mismatch")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}
