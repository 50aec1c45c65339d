package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vpsmonitor/vps-agent/internal/errors"
	"github.com/vpsmonitor/vps-agent/internal/metrics"
)

// DeliveryFailure describes why the collector did not accept a snapshot. It
// is attached as data to ErrDeliveryFailed errors.
type DeliveryFailure struct {
	// StatusCode is zero when no response was received; the cause is then
	// the wrapped error.
	StatusCode int
	Body       string
	Reason     string
}

func (f DeliveryFailure) String() string {
	if f.StatusCode == 0 {
		return f.Reason
	}
	if f.Body == "" {
		return fmt.Sprintf("status %d", f.StatusCode)
	}

	return fmt.Sprintf("status %d: %s", f.StatusCode, f.Body)
}

// Transmitter delivers snapshots for one server. It makes exactly one
// attempt per call; retrying is up to the caller.
type Transmitter struct {
	client *Client
	path   string
}

func NewTransmitter(client *Client, serverName string) *Transmitter {
	return &Transmitter{
		client: client,
		path:   DataPath(serverName),
	}
}

// DataPath returns the collector path snapshots of serverName are posted to.
func DataPath(serverName string) string {
	return "/api/servers/" + url.PathEscape(serverName) + "/data"
}

// Send posts snap. It returns nil only for an HTTP 200 reply. Rejections and
// transport failures return ErrDeliveryFailed with a DeliveryFailure;
// anything that prevented a request from being made returns
// ErrEncodeSnapshot.
func (t *Transmitter) Send(ctx context.Context, snap *metrics.Snapshot) error {
	errFactory := errors.New()

	if snap == nil {
		return errFactory.WithData(errors.ErrEncodeSnapshot, "nil snapshot")
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return errFactory.Wrap(errors.ErrEncodeSnapshot, err)
	}

	resp, err := t.client.PostJSON(ctx, t.path, body)
	if err != nil {
		if errors.HasCode(err, errors.ErrInvalidArgument) {
			return errFactory.Wrap(errors.ErrEncodeSnapshot, err)
		}

		return errFactory.Wrap(errors.ErrDeliveryFailed, err).
			WithData(DeliveryFailure{Reason: "transport error"})
	}

	if resp.StatusCode != http.StatusOK {
		return errFactory.WithData(errors.ErrDeliveryFailed, DeliveryFailure{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		})
	}

	return nil
}

// FailureOf extracts the DeliveryFailure attached to err, if any.
func FailureOf(err error) (DeliveryFailure, bool) {
	var appErr errors.Error
	if !errors.As(err, &appErr) {
		return DeliveryFailure{}, false
	}
	failure, ok := appErr.GetData().(DeliveryFailure)

	return failure, ok
}
