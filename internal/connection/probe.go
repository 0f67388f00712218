package connection

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/smazurov/camfeed/internal/camera"
)

// ProbeResult is what a single connect attempt learned about a camera.
type ProbeResult struct {
	CameraID string `json:"camera_id"`
	Status   int    `json:"status"`
	Codec    string `json:"codec,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Probe connects once without receiving frames, then disconnects.
func Probe(ctx context.Context, factory camera.Factory, p Params) (ProbeResult, error) {
	result := ProbeResult{CameraID: p.ID, Status: camera.StatusFailed}

	cam, err := factory(p.ID)
	if err != nil {
		return result, fmt.Errorf("create camera: %w", err)
	}

	err = cam.Connect(ctx, camera.ConnectParams{
		ID:       p.ID,
		Username: p.Username,
		Password: p.Password,
		OnDiscover: func(d camera.Discovery) {
			result.Codec = d.Codec
			result.Detail = d.Detail
		},
		OnConnect: func(status int) { result.Status = status },
	})
	return result, multierr.Append(err, cam.Disconnect())
}
