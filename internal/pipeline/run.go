package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/finishline/internal/monitoring"
	"github.com/banshee-data/finishline/internal/timeutil"
)

// FrameReader is satisfied by *gocv.VideoCapture.
type FrameReader interface {
	Read(m *gocv.Mat) bool
}

type positioner interface {
	Get(prop gocv.VideoCaptureProperties) float64
}

// OpenVideo opens a capture device by index ("0") or a file or stream URL.
func OpenVideo(source string) (*gocv.VideoCapture, error) {
	var device interface{} = source
	if idx, err := strconv.Atoi(source); err == nil {
		device = idx
	}
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open video %q: %w", source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video %q: not opened", source)
	}
	return vc, nil
}

// Run processes frames from r until the stream ends or ctx is cancelled.
// onFrame, if set, sees every corrected frame before it is released. When
// the pipeline clock is a *timeutil.StreamClock it follows the stream
// position reported by r.
func (p *Pipeline) Run(ctx context.Context, r FrameReader, onFrame func(*FrameResult)) error {
	p.setRunning(true)
	defer p.setRunning(false)

	frame := gocv.NewMat()
	defer frame.Close()

	streamClock, _ := p.clock.(*timeutil.StreamClock)
	pos, _ := r.(positioner)

	for {
		if ctx.Err() != nil {
			break
		}
		if ok := r.Read(&frame); !ok || frame.Empty() {
			monitoring.Opsf("[pipeline] end of stream after %d frames", p.frame)
			break
		}
		if streamClock != nil && pos != nil {
			ms := pos.Get(gocv.VideoCapturePosMsec)
			streamClock.SetPosition(time.Duration(ms * float64(time.Millisecond)))
		}

		res, err := p.ProcessFrame(ctx, frame)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			monitoring.Opsf("[pipeline] frame %d: %v", p.frame, err)
			continue
		}
		if onFrame != nil {
			onFrame(res)
		}
		res.Close()
	}

	p.Finish()
	return nil
}

// Finish drops the objects still tracked without counting them and logs
// the run summary. It returns how many were dropped.
func (p *Pipeline) Finish() int {
	dropped := p.tracker.Reset()
	p.publishSnapshot(p.frame-1, nil)
	monitoring.Opsf("[pipeline] run %s finished: %d frames, %d crossings, %d tracked objects dropped uncounted",
		p.runID, p.frame, p.aggregator.Total(), dropped)
	return dropped
}
