package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtph264"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtph265"
	"github.com/bluenviron/gortsplib/v4/pkg/liberrors"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/pkg/codecs/h265"
	"github.com/pion/rtp"

	"github.com/smazurov/camfeed/internal/version"
)

// ErrNotConnected is returned by StartReceiving before a successful Connect.
var ErrNotConnected = errors.New("camera not connected")

const rtspTimeout = 10 * time.Second

// track is the selected video track with its codec specific helpers.
type track struct {
	media  *description.Media
	forma  format.Format
	codec  string
	decode func(*rtp.Packet) ([][]byte, error)
	// params returns the out-of-band parameter sets from the SDP.
	params    func() [][]byte
	keyFrame  func([][]byte) bool
	isParam   func([]byte) bool
	needsMore func(error) bool
}

// RTSPCamera reads an H.264 or H.265 track from an RTSP server.
type RTSPCamera struct {
	id     string
	rawURL string
	codec  string
	logger *slog.Logger

	mu           sync.Mutex
	client       *gortsplib.Client
	track        *track
	onOffline    func(error)
	disconnected bool
	waitDone     chan struct{}
}

// NewRTSPCamera creates a camera for rawURL. An empty codec accepts the
// first H.265 or H.264 track found.
func NewRTSPCamera(id, rawURL, codec string, logger *slog.Logger) *RTSPCamera {
	return &RTSPCamera{
		id:     id,
		rawURL: rawURL,
		codec:  codec,
		logger: logger.With("camera_id", id),
	}
}

// ID returns the camera identifier.
func (c *RTSPCamera) ID() string { return c.id }

// Connect describes the stream, selects the video track and sets it up.
func (c *RTSPCamera) Connect(ctx context.Context, params ConnectParams) error {
	u, err := base.ParseURL(c.rawURL)
	if err != nil {
		return c.fail(params, StatusFailed, fmt.Errorf("parse url: %w", err))
	}
	if params.Username != "" {
		u.User = url.UserPassword(params.Username, params.Password)
	}

	client := &gortsplib.Client{
		ReadTimeout:  rtspTimeout,
		WriteTimeout: rtspTimeout,
		UserAgent:    version.UserAgent(),
	}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return c.fail(params, StatusFailed, fmt.Errorf("start client: %w", err))
	}

	// Closing the client aborts a request in flight.
	stop := context.AfterFunc(ctx, client.Close)
	defer stop()

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return c.fail(params, statusFromError(err), fmt.Errorf("describe: %w", err))
	}

	tr, err := selectTrack(desc, c.codec)
	if err != nil {
		client.Close()
		return c.fail(params, StatusNoTrack, err)
	}
	if params.OnDiscover != nil {
		params.OnDiscover(Discovery{
			CameraID: c.id,
			Codec:    tr.codec,
			Detail:   fmt.Sprintf("%d media, %s track", len(desc.Medias), tr.forma.Codec()),
		})
	}

	if _, err := client.Setup(desc.BaseURL, tr.media, 0, 0); err != nil {
		client.Close()
		return c.fail(params, statusFromError(err), fmt.Errorf("setup: %w", err))
	}
	if ctx.Err() != nil {
		client.Close()
		return c.fail(params, StatusFailed, ctx.Err())
	}

	c.mu.Lock()
	c.client = client
	c.track = tr
	c.onOffline = params.OnOffline
	c.mu.Unlock()

	c.logger.Info("RTSP session established", "codec", tr.codec, "host", u.Host)
	if params.OnConnect != nil {
		params.OnConnect(StatusOK)
	}
	return nil
}

func (c *RTSPCamera) fail(params ConnectParams, status int, err error) error {
	if params.OnConnect != nil {
		params.OnConnect(status)
	}
	return &ConnectError{Status: status, Err: err}
}

// StartReceiving starts playback and delivers one frame per access unit.
func (c *RTSPCamera) StartReceiving(handler FrameHandler) error {
	c.mu.Lock()
	client, tr := c.client, c.track
	if client == nil || c.disconnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.waitDone = make(chan struct{})
	done := c.waitDone
	c.mu.Unlock()

	client.OnPacketRTP(tr.media, tr.forma, func(pkt *rtp.Packet) {
		pts, ok := client.PacketPTS(tr.media, pkt)
		if !ok {
			return
		}
		au, err := tr.decode(pkt)
		if err != nil {
			if !tr.needsMore(err) {
				c.logger.Debug("Dropping undecodable packet", "error", err)
			}
			return
		}
		frame, err := accessUnitFrame(tr, au, pts)
		if err != nil {
			c.logger.Warn("Failed to encode access unit", "error", err)
			return
		}
		handler(frame)
	})

	if _, err := client.Play(nil); err != nil {
		close(done)
		return fmt.Errorf("play: %w", err)
	}

	go func() {
		defer close(done)
		err := client.Wait()

		c.mu.Lock()
		offline, disconnected := c.onOffline, c.disconnected
		c.mu.Unlock()
		if disconnected {
			return
		}
		c.logger.Warn("RTSP session ended", "error", err)
		if offline != nil {
			offline(err)
		}
	}()
	return nil
}

// Disconnect closes the session and waits for the receive goroutine.
func (c *RTSPCamera) Disconnect() error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return nil
	}
	c.disconnected = true
	client, done := c.client, c.waitDone
	c.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}

// statusFromError maps RTSP response errors to their status code.
func statusFromError(err error) int {
	var bad liberrors.ErrClientBadStatusCode
	if errors.As(err, &bad) {
		return int(bad.Code)
	}
	return StatusFailed
}

// selectTrack picks the video track matching codec, preferring H.265.
func selectTrack(desc *description.Session, codec string) (*track, error) {
	if codec == "" || codec == "h265" {
		var forma *format.H265
		if media := desc.FindFormat(&forma); media != nil {
			return h265Track(media, forma)
		}
	}
	if codec == "" || codec == "h264" {
		var forma *format.H264
		if media := desc.FindFormat(&forma); media != nil {
			return h264Track(media, forma)
		}
	}
	if codec == "" {
		return nil, errors.New("no H.264 or H.265 track")
	}
	return nil, fmt.Errorf("no %s track", codec)
}

func h264Track(media *description.Media, forma *format.H264) (*track, error) {
	dec, err := forma.CreateDecoder()
	if err != nil {
		return nil, fmt.Errorf("create h264 decoder: %w", err)
	}
	return &track{
		media:  media,
		forma:  forma,
		codec:  "h264",
		decode: dec.Decode,
		params: func() [][]byte {
			sps, pps := forma.SafeParams()
			return nonEmpty(sps, pps)
		},
		keyFrame: h264.IDRPresent,
		isParam: func(nalu []byte) bool {
			typ := h264.NALUType(nalu[0] & 0x1F)
			return typ == h264.NALUTypeSPS || typ == h264.NALUTypePPS
		},
		needsMore: func(err error) bool {
			return errors.Is(err, rtph264.ErrMorePacketsNeeded) ||
				errors.Is(err, rtph264.ErrNonStartingPacketAndNoPrevious)
		},
	}, nil
}

func h265Track(media *description.Media, forma *format.H265) (*track, error) {
	dec, err := forma.CreateDecoder()
	if err != nil {
		return nil, fmt.Errorf("create h265 decoder: %w", err)
	}
	return &track{
		media:  media,
		forma:  forma,
		codec:  "h265",
		decode: dec.Decode,
		params: func() [][]byte {
			vps, sps, pps := forma.SafeParams()
			return nonEmpty(vps, sps, pps)
		},
		keyFrame: h265.IsRandomAccess,
		isParam: func(nalu []byte) bool {
			typ := h265.NALUType((nalu[0] >> 1) & 0b111111)
			return typ == h265.NALUType_VPS_NUT || typ == h265.NALUType_SPS_NUT || typ == h265.NALUType_PPS_NUT
		},
		needsMore: func(err error) bool {
			return errors.Is(err, rtph265.ErrMorePacketsNeeded) ||
				errors.Is(err, rtph265.ErrNonStartingPacketAndNoPrevious)
		},
	}, nil
}

// accessUnitFrame converts an access unit to an Annex-B frame. Key frames
// that arrive without in-band parameter sets get the SDP ones prepended so
// a decoder can start on any key frame.
func accessUnitFrame(tr *track, au [][]byte, pts time.Duration) (Frame, error) {
	au = nonEmpty(au...)
	if len(au) == 0 {
		return Frame{}, errors.New("empty access unit")
	}

	key := tr.keyFrame(au)
	if key && !hasParams(au, tr.isParam) {
		au = append(tr.params(), au...)
	}

	data, err := h264.AnnexBMarshal(au)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: data, PTS: pts, KeyFrame: key}, nil
}

func hasParams(au [][]byte, isParam func([]byte) bool) bool {
	for _, nalu := range au {
		if isParam(nalu) {
			return true
		}
	}
	return false
}

func nonEmpty(nalus ...[]byte) [][]byte {
	out := make([][]byte, 0, len(nalus))
	for _, n := range nalus {
		if len(n) > 0 {
			out = append(out, n)
		}
	}
	return out
}
