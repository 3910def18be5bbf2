package gcp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/podreach-backend/internal/pkg/ctxutil"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

// inlineAudioLimit is the largest payload Speech accepts as inline content.
const inlineAudioLimit = 10 << 20

// ErrAudioTooLarge is returned for audio above the inline limit when no staging bucket is configured.
var ErrAudioTooLarge = errors.New("audio exceeds inline limit and staging is disabled")

type Speech interface {
	TranscribeFile(ctx context.Context, localPath string, cfg SpeechConfig) (*SpeechResult, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode string
	Model        string
	UseEnhanced  bool

	EnableAutomaticPunctuation bool
	EnableWordTimeOffsets      bool

	EnableSpeakerDiarization bool
	MinSpeakerCount          int
	MaxSpeakerCount          int

	SampleRateHertz   int
	AudioChannelCount int
}

// Segment is a span of transcript; offsets are relative to the start of the audio.
type Segment struct {
	Text       string
	StartSec   float64
	EndSec     float64
	SpeakerTag int
}

type SpeechResult struct {
	PrimaryText string
	Segments    []Segment
}

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	staging    AudioStaging
	maxRetries int
}

// NewSpeech dials the Speech API. staging may be nil.
func NewSpeech(ctx context.Context, log *logger.Logger, credentials string, staging AudioStaging) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := speech.NewClient(ctxutil.Default(ctx), ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &speechService{
		log:        log.With("service", "gcp.Speech"),
		client:     c,
		staging:    staging,
		maxRetries: 4,
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeFile(ctx context.Context, localPath string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return &SpeechResult{}, nil
	}

	audio := &speechpb.RecognitionAudio{}
	if info.Size() <= inlineAudioLimit {
		b, err := os.ReadFile(localPath)
		if err != nil {
			return nil, err
		}
		audio.AudioSource = &speechpb.RecognitionAudio_Content{Content: b}
	} else {
		if s.staging == nil {
			return nil, fmt.Errorf("%w: %d bytes", ErrAudioTooLarge, info.Size())
		}
		key := uuid.NewString() + filepath.Ext(localPath)
		uri, err := s.staging.Stage(ctx, key, localPath)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := s.staging.Remove(context.Background(), key); err != nil {
				s.log.Warn("Failed to remove staged audio", "key", key, "error", err.Error())
			}
		}()
		audio.AudioSource = &speechpb.RecognitionAudio_Uri{Uri: uri}
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: buildRecognitionConfig(localPath, cfg),
		Audio:  audio,
	}
	resp, err := s.retryLR(ctx, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	return parseSpeechResponse(resp, cfg.EnableWordTimeOffsets, cfg.EnableSpeakerDiarization), nil
}

func buildRecognitionConfig(localPath string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		UseEnhanced:                cfg.UseEnhanced,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		EnableWordTimeOffsets:      cfg.EnableWordTimeOffsets || cfg.EnableSpeakerDiarization,
		Encoding:                   inferSpeechEncoding(localPath),
		SampleRateHertz:            int32(max0(cfg.SampleRateHertz)),
		AudioChannelCount:          int32(max0(cfg.AudioChannelCount)),
	}
	if cfg.EnableSpeakerDiarization {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          int32(max0(cfg.MinSpeakerCount)),
			MaxSpeakerCount:          int32(max0(cfg.MaxSpeakerCount)),
		}
	}
	return rc
}

func inferSpeechEncoding(p string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	}
	return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
}

type speechWord struct {
	w   string
	s   float64
	e   float64
	spk int
}

func parseSpeechResponse(resp *speechpb.LongRunningRecognizeResponse, wantWords bool, diarize bool) *SpeechResult {
	out := &SpeechResult{}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	var words []speechWord
	var full strings.Builder
	for i, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		// With diarization the last result repeats every word with speaker tags.
		if diarize && i == len(resp.Results)-1 && len(resp.Results) > 1 {
			words = words[:0]
			for _, ww := range alt.Words {
				if ww != nil {
					words = append(words, speechWord{w: ww.Word, s: durToSec(ww.StartTime), e: durToSec(ww.EndTime), spk: int(ww.SpeakerTag)})
				}
			}
			continue
		}
		text := collapseWhitespace(alt.Transcript)
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)
		if wantWords || diarize {
			for _, ww := range alt.Words {
				if ww != nil {
					words = append(words, speechWord{w: ww.Word, s: durToSec(ww.StartTime), e: durToSec(ww.EndTime), spk: int(ww.SpeakerTag)})
				}
			}
		}
	}
	out.PrimaryText = strings.TrimSpace(full.String())

	switch {
	case diarize && len(words) > 0:
		out.Segments = groupBySpeaker(words)
	case wantWords && len(words) > 0:
		out.Segments = groupByTime(words, 30)
	case out.PrimaryText != "":
		out.Segments = []Segment{{Text: out.PrimaryText}}
	}
	return out
}

func groupBySpeaker(words []speechWord) []Segment {
	var segs []Segment
	cur := Segment{StartSec: words[0].s, EndSec: words[0].e, SpeakerTag: words[0].spk}
	var buf strings.Builder
	flush := func() {
		if txt := strings.TrimSpace(buf.String()); txt != "" {
			cur.Text = txt
			segs = append(segs, cur)
		}
		buf.Reset()
	}
	for _, w := range words {
		if w.spk != cur.SpeakerTag && buf.Len() > 0 {
			flush()
			cur = Segment{StartSec: w.s, EndSec: w.e, SpeakerTag: w.spk}
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.w)
		cur.EndSec = math.Max(cur.EndSec, w.e)
	}
	flush()
	return segs
}

func groupByTime(words []speechWord, windowSec float64) []Segment {
	var segs []Segment
	cur := Segment{StartSec: words[0].s, EndSec: words[0].e}
	var buf strings.Builder
	flush := func() {
		if txt := strings.TrimSpace(buf.String()); txt != "" {
			cur.Text = txt
			segs = append(segs, cur)
		}
		buf.Reset()
	}
	for _, w := range words {
		if w.s-cur.StartSec >= windowSec && buf.Len() > 0 {
			flush()
			cur = Segment{StartSec: w.s, EndSec: w.e}
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.w)
		cur.EndSec = math.Max(cur.EndSec, w.e)
	}
	flush()
	return segs
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func (s *speechService) retryLR(ctx context.Context, fn func() (*speechpb.LongRunningRecognizeResponse, error)) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		s.log.Warn("Speech request retrying", "attempt", attempt+1, "code", code.String())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

func max0(x int) int {
	if x < 0 {
		return 0
	}
	return x
}
