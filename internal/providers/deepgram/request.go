package deepgram

import (
	"sync"

	"voxbind/internal/domain"
)

// audioRequest queues captured frames for one streaming task. Append never
// blocks, and frames arriving after EndAudio are dropped.
type audioRequest struct {
	mu     sync.Mutex
	frames [][]byte
	ended  bool
	wake   chan struct{}

	sampleRate int
	channels   int
}

func newAudioRequest(sampleRate, channels int) *audioRequest {
	return &audioRequest{
		wake:       make(chan struct{}, 1),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (r *audioRequest) Append(frame domain.AudioFrame) {
	if len(frame.PCM) == 0 {
		return
	}
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.frames = append(r.frames, append([]byte(nil), frame.PCM...))
	r.mu.Unlock()
	r.signal()
}

func (r *audioRequest) EndAudio() {
	r.mu.Lock()
	r.ended = true
	r.mu.Unlock()
	r.signal()
}

func (r *audioRequest) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// next blocks until a frame is queued, the audio has ended and drained, or
// done is closed. ok is false once nothing more will arrive.
func (r *audioRequest) next(done <-chan struct{}) (chunk []byte, ok bool) {
	for {
		r.mu.Lock()
		if len(r.frames) > 0 {
			chunk = r.frames[0]
			r.frames[0] = nil
			r.frames = r.frames[1:]
			r.mu.Unlock()
			return chunk, true
		}
		ended := r.ended
		r.mu.Unlock()
		if ended {
			return nil, false
		}

		select {
		case <-r.wake:
		case <-done:
			return nil, false
		}
	}
}

func (r *audioRequest) isEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}
