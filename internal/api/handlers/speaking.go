package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeenglish/speaking-backend/internal/config"
	"github.com/jeenglish/speaking-backend/internal/feedback"
	"github.com/jeenglish/speaking-backend/internal/queue"
	"github.com/jeenglish/speaking-backend/internal/stt"
	"github.com/jeenglish/speaking-backend/internal/usage"
)

const (
	maxUploadBytes  = 32 << 20
	anonymousUser   = "anonymous@example.com"
	persistTimeout  = 30 * time.Second
	genericGradeErr = "Server error during speech grading."
)

type gradeResponse struct {
	Fluency    string `json:"fluency"`
	Vocabulary string `json:"vocabulary"`
	Grammar    string `json:"grammar"`
	Feedback   string `json:"feedback"`
	Used       int    `json:"used"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
}

type SpeakingHandler struct {
	usage    *usage.Service
	stt      stt.Provider
	feedback *feedback.Service
	queue    *queue.Client // set only when persist mode is "queue"
	quota    config.QuotaConfig
}

func NewSpeakingHandler(usageSvc *usage.Service, sttProvider stt.Provider, feedbackSvc *feedback.Service, queueClient *queue.Client, quota config.QuotaConfig) *SpeakingHandler {
	return &SpeakingHandler{
		usage:    usageSvc,
		stt:      sttProvider,
		feedback: feedbackSvc,
		queue:    queueClient,
		quota:    quota,
	}
}

// Grade runs the full pipeline: admit against the monthly quota, transcribe
// the uploaded clip, generate coaching feedback, split it into sections and
// record the consumption.
//
// With the default "after" charge policy the quota tick happens only once
// transcription, generation and extraction have all succeeded, so an
// upstream failure never charges the user. The "before" policy charges at
// admission time, matching earlier deployments.
func (h *SpeakingHandler) Grade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file required"})
		return
	}
	defer file.Close()

	email := usage.NormalizeUser(r.FormValue("userEmail"))
	if email == "" {
		email = anonymousUser
	}

	examples, err := parseExamples(r.FormValue("examples"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "examples must be a JSON array of strings"})
		return
	}

	var rec usage.Record
	if h.quota.ChargePolicy == "before" {
		charged, allowed := h.charge(ctx, email)
		if !allowed {
			h.rejectQuota(w, charged)
			return
		}
		rec = charged
	} else {
		rec = h.usage.GetUsage(ctx, email)
		if rec.Used >= rec.Limit {
			h.rejectQuota(w, rec)
			return
		}
	}

	tmpPath, err := spoolAudio(file, header.Filename)
	if err != nil {
		slog.Error("spool audio upload", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": genericGradeErr})
		return
	}
	defer os.Remove(tmpPath)

	slog.Info("received audio", "user", email, "file", header.Filename)

	transcription, err := h.stt.Transcribe(ctx, stt.TranscriptionRequest{FilePath: tmpPath})
	if err != nil {
		slog.Error("transcription failed", "user", email, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": genericGradeErr})
		return
	}
	transcript := strings.TrimSpace(transcription.Text)
	slog.Info("transcribed", "user", email, "chars", len(transcript))

	result, err := h.feedback.Grade(ctx, examples, transcript)
	if err != nil {
		slog.Error("feedback generation failed", "user", email, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": genericGradeErr})
		return
	}

	if h.quota.ChargePolicy != "before" {
		// The client may have gone away by now; the charge and its write
		// must still complete so the paid request gets its usage tick.
		charged, allowed := h.charge(context.WithoutCancel(ctx), email)
		if !allowed {
			h.rejectQuota(w, charged)
			return
		}
		rec = charged
	}

	writeJSON(w, http.StatusOK, gradeResponse{
		Fluency:    result.Fields.Fluency,
		Vocabulary: result.Fields.Vocabulary,
		Grammar:    result.Fields.Grammar,
		Feedback:   result.Raw,
		Used:       rec.Used,
		Limit:      rec.Limit,
		Remaining:  rec.Remaining(),
	})
}

func (h *SpeakingHandler) rejectQuota(w http.ResponseWriter, rec usage.Record) {
	writeJSON(w, http.StatusForbidden, map[string]string{
		"error": fmt.Sprintf("Monthly limit reached (%d feedbacks).", rec.Limit),
	})
}

// charge consumes one unit for the user and schedules persistence according
// to the configured mode. Write failures are logged, never surfaced: the
// admission decision has already been made.
func (h *SpeakingHandler) charge(ctx context.Context, email string) (usage.Record, bool) {
	if h.quota.SerializeUsers {
		rec, allowed, err := h.usage.Consume(ctx, email)
		if err != nil {
			slog.Error("persist usage ledger", "user", email, "error", err)
		}
		return rec, allowed
	}

	ledger, rec, allowed := h.usage.TryConsume(ctx, email)
	if !allowed {
		return rec, false
	}
	h.persist(ctx, ledger)
	return rec, true
}

func (h *SpeakingHandler) persist(ctx context.Context, l usage.Ledger) {
	switch h.quota.PersistMode {
	case "queue":
		if h.queue != nil {
			if err := h.queue.EnqueueUsagePersist(l); err != nil {
				slog.Error("enqueue usage persist", "error", err)
			}
			return
		}
		slog.Warn("queue persist requested but no queue client, writing inline")
		fallthrough
	case "sync":
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := h.usage.Persist(pctx, l); err != nil {
			slog.Error("persist usage ledger", "error", err)
		}
	case "async":
		go func() {
			pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := h.usage.Persist(pctx, l); err != nil {
				slog.Error("persist usage ledger", "error", err)
			}
		}()
	}
}

func parseExamples(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var examples []string
	if err := json.Unmarshal([]byte(raw), &examples); err != nil {
		return nil, err
	}
	return examples, nil
}

func spoolAudio(file io.Reader, name string) (string, error) {
	ext := filepath.Ext(name)
	path := filepath.Join(os.TempDir(), "speaking-"+uuid.NewString()+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return path, nil
}
