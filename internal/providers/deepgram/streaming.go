package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"voxbind/internal/domain"
	"voxbind/internal/ports"
)

var errClosedEarly = errors.New("deepgram closed the stream before end of audio")

// StartTask opens a streaming websocket bound to request. The handler gets
// the best transcription after every non-empty result, then one final
// update once the server closes after end of audio, or one error update.
func (r *recognizer) StartTask(ctx context.Context, req ports.RecognitionRequest, handler ports.RecognitionHandler) (ports.RecognitionTask, error) {
	request, ok := req.(*audioRequest)
	if !ok {
		return nil, errors.New("request was not created by the deepgram recognizer")
	}

	wsURL, err := buildListenURL(r.provider.cfg, r.language)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.provider.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	task := &streamingTask{
		conn:    conn,
		request: request,
		handler: handler,
		log:     r.provider.log,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	task.wg.Add(2)
	go task.readLoop()
	go task.writeLoop()
	go func() {
		task.wg.Wait()
		close(task.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			task.Cancel()
		case <-task.done:
		}
	}()

	return task, nil
}

type streamingTask struct {
	conn    *websocket.Conn
	request *audioRequest
	handler ports.RecognitionHandler
	log     logrus.FieldLogger

	aggregator transcriptAggregator

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	cancelled atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Cancel closes the connection. No handler call starts after Cancel returns.
func (t *streamingTask) Cancel() {
	t.cancelled.Store(true)
	t.halt()
	t.closeOnce.Do(func() {
		_ = t.conn.Close()
	})
}

func (t *streamingTask) halt() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

func (t *streamingTask) waitErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *streamingTask) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *streamingTask) writeLoop() {
	defer t.wg.Done()

	for {
		chunk, ok := t.request.next(t.stop)
		if !ok {
			break
		}
		if err := t.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			t.setErr(fmt.Errorf("failed to send audio: %w", err))
			_ = t.conn.Close()
			return
		}
	}

	if !t.request.isEnded() {
		return
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		t.setErr(fmt.Errorf("failed to close stream: %w", err))
		_ = t.conn.Close()
	}
}

func (t *streamingTask) readLoop() {
	defer t.wg.Done()
	defer t.halt()

	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.finish(err)
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			t.log.WithError(err).Debug("skipping undecodable provider event")
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			t.setErr(errors.New(message))
			t.finish(nil)
			return
		}
		if response.Type != "" && !strings.EqualFold(response.Type, "Results") {
			continue
		}

		transcript := extractTranscript(response)
		t.aggregator.Add(transcript, response.IsFinal || response.SpeechFinal)
		if transcript == "" {
			continue
		}
		t.deliver(domain.RecognitionUpdate{Text: t.aggregator.Best(), HasResult: true})
	}
}

// finish reports the terminal update once the read side is done.
func (t *streamingTask) finish(readErr error) {
	t.setErr(readErr)
	err := t.waitErr()
	if err == nil && !t.request.isEnded() {
		err = errClosedEarly
	}

	if err != nil {
		t.deliver(domain.RecognitionUpdate{Err: err})
		return
	}

	best := t.aggregator.Best()
	t.deliver(domain.RecognitionUpdate{Text: best, HasResult: best != "", IsFinal: true})
}

func (t *streamingTask) deliver(update domain.RecognitionUpdate) {
	if t.cancelled.Load() {
		return
	}
	t.handler(update)
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(cfg Config, language string) (string, error) {
	base, err := websocketBase(cfg.APIBaseURL)
	if err != nil {
		return "", err
	}

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", fmt.Sprintf("%d", channels))
	query.Set("interim_results", "true")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if language != "" {
		query.Set("language", language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

func websocketBase(apiBase string) (string, error) {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		base = defaultAPIBaseURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	return base, nil
}
