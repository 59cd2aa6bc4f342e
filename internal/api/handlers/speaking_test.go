package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeenglish/speaking-backend/internal/api/handlers"
	"github.com/jeenglish/speaking-backend/internal/config"
	"github.com/jeenglish/speaking-backend/internal/feedback"
	"github.com/jeenglish/speaking-backend/internal/llm"
	"github.com/jeenglish/speaking-backend/internal/store"
	"github.com/jeenglish/speaking-backend/internal/stt"
	"github.com/jeenglish/speaking-backend/internal/usage"
)

type fakeSTT struct {
	text  string
	err   error
	calls int
}

func (f *fakeSTT) Transcribe(_ context.Context, _ stt.TranscriptionRequest) (*stt.TranscriptionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &stt.TranscriptionResponse{Text: f.text}, nil
}

func (f *fakeSTT) Name() string { return "fake-stt" }

type fakeGateway struct {
	content string
	err     error
	calls   int
}

func (f *fakeGateway) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Provider: "fake", Content: f.content}, nil
}

func (f *fakeGateway) Provider(string) (llm.Provider, error) {
	return nil, errors.New("fake gateway has no providers")
}

const feedbackBlob = "💬 Fluency: smooth overall\n🧠 Vocabulary: nice range\n🛠 Grammar: 👉 he go ✅ he goes"

func defaultQuota() config.QuotaConfig {
	return config.QuotaConfig{
		MonthlyLimit: usage.DefaultMonthlyLimit,
		ChargePolicy: "after",
		PersistMode:  "sync",
	}
}

func newGradeRequest(t *testing.T, withAudio bool, userEmail, examples string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if withAudio {
		fw, err := mw.CreateFormFile("audio", "clip.webm")
		require.NoError(t, err)
		_, err = fw.Write([]byte("not really audio"))
		require.NoError(t, err)
	}
	if userEmail != "" {
		require.NoError(t, mw.WriteField("userEmail", userEmail))
	}
	if examples != "" {
		require.NoError(t, mw.WriteField("examples", examples))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/speaking/grade", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestGrade_Success(t *testing.T) {
	mem := store.NewMemory()
	usageSvc := usage.NewService(mem)
	gw := &fakeGateway{content: feedbackBlob}
	h := handlers.NewSpeakingHandler(usageSvc, &fakeSTT{text: "I get up at seven."},
		feedback.NewService(gw, ""), nil, defaultQuota())

	req := newGradeRequest(t, true, "Alice@Example.com", `["I usually get up at seven."]`)
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Fluency    string `json:"fluency"`
		Vocabulary string `json:"vocabulary"`
		Grammar    string `json:"grammar"`
		Feedback   string `json:"feedback"`
		Used       int    `json:"used"`
		Limit      int    `json:"limit"`
		Remaining  int    `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Equal(t, "smooth overall", resp.Fluency)
	assert.Equal(t, "nice range", resp.Vocabulary)
	assert.Equal(t, "👉 he go ✅ he goes", resp.Grammar)
	assert.Equal(t, feedbackBlob, resp.Feedback)
	assert.Equal(t, 1, resp.Used)
	assert.Equal(t, usage.DefaultMonthlyLimit, resp.Limit)
	assert.Equal(t, usage.DefaultMonthlyLimit-1, resp.Remaining)

	// Consumption is durable and attributed to the lowercased user.
	assert.Equal(t, 1, usageSvc.GetUsage(context.Background(), "alice@example.com").Used)
}

func TestGrade_MissingAudio(t *testing.T) {
	sttFake := &fakeSTT{text: "x"}
	h := handlers.NewSpeakingHandler(usage.NewService(store.NewMemory()), sttFake,
		feedback.NewService(&fakeGateway{content: feedbackBlob}, ""), nil, defaultQuota())

	req := newGradeRequest(t, false, "alice@example.com", "")
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "audio")
	assert.Zero(t, sttFake.calls)
}

func TestGrade_MalformedExamples(t *testing.T) {
	h := handlers.NewSpeakingHandler(usage.NewService(store.NewMemory()), &fakeSTT{text: "x"},
		feedback.NewService(&fakeGateway{content: feedbackBlob}, ""), nil, defaultQuota())

	req := newGradeRequest(t, true, "alice@example.com", `not json`)
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGrade_QuotaExhausted(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	month := usage.MonthKey(time.Now())
	require.NoError(t, mem.Save(ctx, usage.Ledger{
		"alice@example.com": {month: usage.Record{Used: usage.DefaultMonthlyLimit, Limit: usage.DefaultMonthlyLimit}},
	}))

	sttFake := &fakeSTT{text: "x"}
	h := handlers.NewSpeakingHandler(usage.NewService(mem), sttFake,
		feedback.NewService(&fakeGateway{content: feedbackBlob}, ""), nil, defaultQuota())

	req := newGradeRequest(t, true, "alice@example.com", "")
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Monthly limit reached")
	// No paid downstream call happens for a rejected request.
	assert.Zero(t, sttFake.calls)
}

func TestGrade_TranscriptionFailure_NoCharge(t *testing.T) {
	mem := store.NewMemory()
	usageSvc := usage.NewService(mem)
	h := handlers.NewSpeakingHandler(usageSvc, &fakeSTT{err: errors.New("whisper down")},
		feedback.NewService(&fakeGateway{content: feedbackBlob}, ""), nil, defaultQuota())

	req := newGradeRequest(t, true, "alice@example.com", "")
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	// Generic error only, no internals leaked.
	assert.NotContains(t, rr.Body.String(), "whisper down")
	assert.Equal(t, 0, usageSvc.GetUsage(context.Background(), "alice@example.com").Used)
}

func TestGrade_GenerationFailure_NoCharge(t *testing.T) {
	usageSvc := usage.NewService(store.NewMemory())
	h := handlers.NewSpeakingHandler(usageSvc, &fakeSTT{text: "x"},
		feedback.NewService(&fakeGateway{err: errors.New("model down")}, ""), nil, defaultQuota())

	req := newGradeRequest(t, true, "alice@example.com", "")
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 0, usageSvc.GetUsage(context.Background(), "alice@example.com").Used)
}

func TestGrade_ChargeBeforePolicy_ChargesDespiteFailure(t *testing.T) {
	usageSvc := usage.NewService(store.NewMemory())
	quota := defaultQuota()
	quota.ChargePolicy = "before"

	h := handlers.NewSpeakingHandler(usageSvc, &fakeSTT{err: errors.New("whisper down")},
		feedback.NewService(&fakeGateway{content: feedbackBlob}, ""), nil, quota)

	req := newGradeRequest(t, true, "alice@example.com", "")
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 1, usageSvc.GetUsage(context.Background(), "alice@example.com").Used)
}

func TestGrade_AnonymousFallback(t *testing.T) {
	usageSvc := usage.NewService(store.NewMemory())
	h := handlers.NewSpeakingHandler(usageSvc, &fakeSTT{text: "x"},
		feedback.NewService(&fakeGateway{content: feedbackBlob}, ""), nil, defaultQuota())

	req := newGradeRequest(t, true, "", "")
	rr := httptest.NewRecorder()
	h.Grade(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, usageSvc.GetUsage(context.Background(), "anonymous@example.com").Used)
}
