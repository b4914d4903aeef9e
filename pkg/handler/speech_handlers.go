package handler

import (
	"io"
	"log/slog"

	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"github.com/gin-gonic/gin"
)

// maxAudioBytes caps uploaded clips at 10MB.
const maxAudioBytes = 10 << 20

// SpeechHandler provides speech transcription and sentiment analysis
type SpeechHandler struct {
	transcriber service.Transcriber
	analyzer    service.SentimentAnalyzer
	logger      *slog.Logger
}

func NewSpeechHandler(transcriber service.Transcriber, analyzer service.SentimentAnalyzer) *SpeechHandler {
	return &SpeechHandler{transcriber: transcriber, analyzer: analyzer, logger: utils.GetLogger()}
}

// Transcribe converts one uploaded audio clip to text. Multipart field name
// is "audio".
func (h *SpeechHandler) Transcribe(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		badRequest(c, "multipart field 'audio' is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		badRequest(c, "failed to read audio upload")
		return
	}
	if len(audio) > maxAudioBytes {
		badRequest(c, "audio upload exceeds 10MB limit")
		return
	}

	transcript, err := h.transcriber.Transcribe(c.Request.Context(), audio, header.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Warn("Transcription failed", "size", len(audio), "error", err)
		writeError(c, err)
		return
	}
	ok(c, transcript)
}

type analyzeSentimentRequest struct {
	Text    string `json:"text" binding:"required"`
	Context string `json:"context"`
}

// AnalyzeSentiment classifies one utterance outside the conversation flow.
func (h *SpeechHandler) AnalyzeSentiment(c *gin.Context) {
	var req analyzeSentimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request parameters: "+err.Error())
		return
	}
	result, err := h.analyzer.Analyze(c.Request.Context(), req.Text, req.Context)
	if err != nil {
		h.logger.Warn("Sentiment analysis failed", "error", err)
		writeError(c, err)
		return
	}
	ok(c, gin.H{
		"sentiment_score": result.Score,
		"is_positive":     result.IsPositive,
		"class":           service.SentimentClass(result),
	})
}
