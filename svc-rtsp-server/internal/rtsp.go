package internal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	mt "github.com/etesami/people-counting-system/pkg/metric"
	log "github.com/sirupsen/logrus"
)

// MPEG-TS and RTP H264 both use a 90 kHz clock.
const clockRate = 90000

func findTrack(r *mpegts.Reader) (*mpegts.Track, error) {
	for _, track := range r.Tracks() {
		if _, ok := track.Codec.(*mpegts.CodecH264); ok {
			return track, nil
		}
	}
	return nil, fmt.Errorf("H264 track not found")
}

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// pace returns how long to wait before sending the unit with the given dts
// so that playback runs in real time.
func pace(firstDTS, dts int64, elapsed time.Duration) time.Duration {
	return time.Duration(dts-firstDTS)*time.Second/clockRate - elapsed
}

// ServerHandler serves a single H264 stream to every client.
type ServerHandler struct {
	Server *gortsplib.Server
	Stream *gortsplib.ServerStream
	Mutex  sync.RWMutex

	sessions atomic.Int64
}

// Start creates the RTSP server on host:port and its H264 stream. UDP
// transport uses rtpPort, which must be even, and rtpPort+1 for RTCP.
// Clients can connect once Start returns.
func Start(host string, port, rtpPort int) (*ServerHandler, error) {
	if rtpPort%2 != 0 {
		return nil, fmt.Errorf("rtp port must be even, got %d", rtpPort)
	}

	h := &ServerHandler{}

	// prevent clients from connecting to the server until the stream is properly set up
	h.Mutex.Lock()
	defer h.Mutex.Unlock()

	h.Server = &gortsplib.Server{
		Handler:           h,
		RTSPAddress:       net.JoinHostPort(host, strconv.Itoa(port)),
		UDPRTPAddress:     net.JoinHostPort(host, strconv.Itoa(rtpPort)),
		UDPRTCPAddress:    net.JoinHostPort(host, strconv.Itoa(rtpPort+1)),
		MulticastIPRange:  "224.1.0.0/16",
		MulticastRTPPort:  rtpPort + 2,
		MulticastRTCPPort: rtpPort + 3,
	}
	if err := h.Server.Start(); err != nil {
		return nil, fmt.Errorf("start rtsp server: %w", err)
	}

	// create a RTSP description that contains a H264 format
	desc := &description.Session{
		Medias: []*description.Media{{
			Type: description.MediaTypeVideo,
			Formats: []format.Format{&format.H264{
				PayloadTyp:        96,
				PacketizationMode: 1,
			}},
		}},
	}
	h.Stream = &gortsplib.ServerStream{
		Server: h.Server,
		Desc:   desc,
	}
	if err := h.Stream.Initialize(); err != nil {
		h.Server.Close()
		return nil, fmt.Errorf("initialize stream: %w", err)
	}
	log.Infof("RTSP server is ready on %s", h.Server.RTSPAddress)
	return h, nil
}

func (sh *ServerHandler) Close() {
	sh.Stream.Close()
	sh.Server.Close()
}

// Sessions returns the number of open client sessions.
func (sh *ServerHandler) Sessions() int64 {
	return sh.sessions.Load()
}

// called when a connection is opened.
func (sh *ServerHandler) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	log.Debug("conn opened")
}

// called when a connection is closed.
func (sh *ServerHandler) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	log.Debugf("conn closed (%v)", ctx.Error)
}

// called when a session is opened.
func (sh *ServerHandler) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	log.WithField("sessions", sh.sessions.Add(1)).Info("session opened")
}

// called when a session is closed.
func (sh *ServerHandler) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	log.WithField("sessions", sh.sessions.Add(-1)).Info("session closed")
}

// called when receiving a DESCRIBE request.
func (sh *ServerHandler) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	sh.Mutex.RLock()
	defer sh.Mutex.RUnlock()

	return &base.Response{
		StatusCode: base.StatusOK,
	}, sh.Stream, nil
}

// called when receiving a SETUP request.
func (sh *ServerHandler) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	sh.Mutex.RLock()
	defer sh.Mutex.RUnlock()

	return &base.Response{
		StatusCode: base.StatusOK,
	}, sh.Stream, nil
}

// called when receiving a PLAY request.
func (sh *ServerHandler) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

// Publisher replays an MPEG-TS file into a stream in real time, rewinding
// at the end so the camera never stops.
type Publisher struct {
	Path   string
	Stream *gortsplib.ServerStream
	Metric *mt.Metric
}

// Run publishes until ctx is done or the file cannot be read.
func (p *Publisher) Run(ctx context.Context) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	// setup H264 -> RTP encoder
	rtpEnc, err := p.Stream.Desc.Medias[0].Formats[0].(*format.H264).CreateEncoder()
	if err != nil {
		return err
	}

	randomStart, err := randUint32()
	if err != nil {
		return err
	}

	for {
		r := &mpegts.Reader{R: f}
		if err := r.Initialize(); err != nil {
			return fmt.Errorf("read %s: %w", p.Path, err)
		}
		track, err := findTrack(r)
		if err != nil {
			return err
		}

		timeDecoder := mpegts.TimeDecoder{}
		timeDecoder.Initialize()

		var firstDTS *int64
		var firstTime time.Time
		var lastRTPTime uint32

		r.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
			dts = timeDecoder.Decode(dts)
			pts = timeDecoder.Decode(pts)

			if firstDTS != nil {
				if wait := pace(*firstDTS, dts, time.Since(firstTime)); wait > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
				}
			} else {
				firstTime = time.Now()
				firstDTS = &dts
			}

			packets, err := rtpEnc.Encode(au)
			if err != nil {
				return err
			}

			// no conversion needed, the clock rates match
			lastRTPTime = uint32(int64(randomStart) + pts)
			for _, packet := range packets {
				packet.Timestamp = lastRTPTime
				if err := p.Stream.WritePacketRTP(p.Stream.Desc.Medias[0], packet); err != nil {
					return err
				}
			}
			if p.Metric != nil {
				p.Metric.AddFrameCount("published", 1)
			}
			return nil
		})

		for {
			err := r.Read()
			if err == nil {
				continue
			}
			if errors.Is(err, astits.ErrNoMorePackets) {
				log.Debug("file has ended, rewinding")
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					return err
				}
				// keep timestamps increasing across loops
				randomStart = lastRTPTime + 1
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}
