package sdk

import (
	"context"
	"fmt"
	"time"

	"github.com/shamank/snet-custody-go/pkg/faults"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Component states reported by Heartbeat.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDisabled = "disabled"
	StatusDegraded = "degraded"
)

// ComponentHealth is the result of probing one dependency.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

// Report aggregates the component probes. Status is down when the ledger is
// unreachable, degraded when any other component is down, up otherwise.
type Report struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// ServingStatus maps the report onto the gRPC health protocol. A degraded
// core still serves.
func (r Report) ServingStatus() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if r.Status == StatusDown {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

type versioner interface {
	Version(ctx context.Context) (string, error)
}

// Heartbeat probes the ledger RPC, the payload backends, the facilitator and
// the credential store. It never returns an error; failures are reported per
// component.
func (c *Core) Heartbeat(ctx context.Context) Report {
	r := Report{CheckedAt: time.Now().UTC()}

	r.Components = append(r.Components, c.checkLedger(ctx))
	for _, b := range c.offloader.Backends() {
		h := ComponentHealth{Name: "storage." + b.Name()}
		switch v, ok := b.(versioner); {
		case !b.Configured():
			h.Status = StatusDisabled
		case ok:
			pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.StorageFetch)
			version, err := v.Version(pctx)
			cancel()
			h.setResult(version, err)
		default:
			h.Status = StatusUp
		}
		r.Components = append(r.Components, h)
	}
	r.Components = append(r.Components, c.checkFacilitator(ctx), c.checkCredentials())

	r.Status = StatusUp
	for _, h := range r.Components {
		if h.Status != StatusDown {
			continue
		}
		if h.Name == "ledger" {
			r.Status = StatusDown
			break
		}
		r.Status = StatusDegraded
	}

	zap.L().Debug("heartbeat", zap.String("status", r.Status))
	return r
}

func (c *Core) checkLedger(ctx context.Context) ComponentHealth {
	h := ComponentHealth{Name: "ledger"}
	client, err := c.dialer(ctx, c.cfg.Network)
	if err != nil {
		h.setResult("", err)
		return h
	}
	defer client.Close()

	block, err := client.GetCurrentBlockNumberCtx(ctx)
	if err != nil {
		h.setResult("", err)
		return h
	}
	h.setResult(fmt.Sprintf("chain %s block %s", client.ChainID, block), nil)
	return h
}

func (c *Core) checkFacilitator(ctx context.Context) ComponentHealth {
	h := ComponentHealth{Name: "facilitator"}
	f := c.gate.Facilitator()
	if f == nil {
		h.Status = StatusDisabled
		return h
	}
	pctx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Facilitator)
	defer cancel()
	_, err := f.Supported(pctx)
	h.setResult(f.BaseURL, err)
	return h
}

func (c *Core) checkCredentials() ComponentHealth {
	h := ComponentHealth{Name: "credentials"}
	if _, err := c.credentialStore(); err != nil {
		h.Status = StatusDisabled
		h.Hint = faults.HintOf(err)
		return h
	}
	h.Status = StatusUp
	return h
}

func (h *ComponentHealth) setResult(detail string, err error) {
	if err != nil {
		h.Status = StatusDown
		h.Error = string(faults.KindOf(err))
		if h.Error == "" {
			h.Error = err.Error()
		}
		h.Hint = faults.HintOf(err)
		return
	}
	h.Status = StatusUp
	h.Detail = detail
}
