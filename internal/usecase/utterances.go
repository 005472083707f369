package usecase

import (
	"context"

	"voxbind/internal/domain"
)

// NewUtteranceStream derives the new-utterance stream from a raw utterance
// subscription. Absent values are dropped and a value equal to the last one
// this stream emitted is suppressed. The returned channel closes when raw
// closes or ctx is done.
func NewUtteranceStream(ctx context.Context, raw <-chan domain.Utterance) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)

		var last string
		emitted := false
		for {
			var utterance domain.Utterance
			select {
			case u, ok := <-raw:
				if !ok {
					return
				}
				utterance = u
			case <-ctx.Done():
				return
			}
			if !utterance.Valid {
				continue
			}
			if emitted && utterance.Text == last {
				continue
			}
			select {
			case out <- utterance.Text:
				last = utterance.Text
				emitted = true
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
