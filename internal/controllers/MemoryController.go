package controllers

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"memoryd/internal/models"
	"memoryd/internal/providers"
	"memoryd/internal/services"
)

const maxRequestBodySize = 1 << 20 // 1 MB

const (
	headerCreatorID  = "X-Creator-ID"
	headerActor      = "X-Actor"
	headerRetryAfter = "Retry-After"
)

type MemoryController struct {
	logger  providers.Logger
	service services.MemoryServiceInterface
	limiter providers.RateLimiterInterface
	metrics providers.MetricsProviderInterface
}

func NewMemoryController(logger providers.Logger, service services.MemoryServiceInterface, limiter providers.RateLimiterInterface, metrics providers.MetricsProviderInterface) *MemoryController {
	return &MemoryController{
		logger:  logger,
		service: service,
		limiter: limiter,
		metrics: metrics,
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type engagementResponse struct {
	FanID           string  `json:"fanId"`
	CreatorID       string  `json:"creatorId"`
	EngagementScore float64 `json:"engagementScore"`
}

type exportResponse struct {
	Export      *models.MemoryExport `json:"export"`
	ArchivePath string               `json:"archivePath,omitempty"`
}

type recommendRequest struct {
	Items []models.ContentItem `json:"items"`
}

type bulkRequest struct {
	FanIDs  []string               `json:"fanIds"`
	Persona *models.CreatorPersona `json:"persona,omitempty"`
}

func creatorID(r *http.Request) string {
	if id := r.URL.Query().Get("creatorId"); id != "" {
		return strings.TrimSpace(id)
	}
	return strings.TrimSpace(r.Header.Get(headerCreatorID))
}

func actor(r *http.Request) string {
	if a := strings.TrimSpace(r.Header.Get(headerActor)); a != "" {
		return a
	}
	return creatorID(r)
}

func pairKey(r *http.Request) models.PairKey {
	return models.NewPairKey(strings.TrimSpace(r.PathValue("fanId")), creatorID(r))
}

// persona reads an optional creator persona from the query string. Nil means
// the configured default applies.
func persona(r *http.Request) (*models.CreatorPersona, error) {
	q := r.URL.Query()
	if q.Get("tone") == "" && q.Get("emojiFrequency") == "" && q.Get("messageLength") == "" && q.Get("softSell") == "" {
		return nil, nil
	}
	p := &models.CreatorPersona{
		Tone:          models.Tone(q.Get("tone")),
		MessageLength: models.LengthPreference(q.Get("messageLength")),
	}
	fields := map[string]string{}
	if p.Tone != "" && !p.Tone.Valid() {
		fields["tone"] = "unknown tone"
	}
	if p.MessageLength != "" && !p.MessageLength.Valid() {
		fields["messageLength"] = "unknown message length"
	}
	parse := func(name string, dest *float64) {
		raw := q.Get(name)
		if raw == "" {
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			fields[name] = name + " must be a number within [0,1]"
			return
		}
		*dest = v
	}
	parse("emojiFrequency", &p.EmojiFrequency)
	parse("softSell", &p.BaseSoftSellProbability)
	if len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields}
	}
	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set(headerRetryAfter, strconv.Itoa(secs))
}

func (mc *MemoryController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr      *models.ValidationError
		retryable *models.RetryableError
		limited   *models.RateLimitError
		tooBig    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid data", Fields: verr.Fields})
	case errors.As(err, &tooBig):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
	case errors.Is(err, models.ErrInvalidData):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "memory changed concurrently, retry"})
	case errors.Is(err, models.ErrBatchTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.As(err, &limited):
		setRetryAfter(w, limited.RetryAfter)
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	case errors.As(err, &retryable):
		setRetryAfter(w, retryable.RetryAfter)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable, retry later"})
	case errors.Is(err, models.ErrStoreUnavailable):
		setRetryAfter(w, mc.service.StoreRetryAfter())
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable, retry later"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "request timed out"})
	case errors.Is(err, context.Canceled):
		mc.logger.Debugf(providers.TypeApp, "%s %s cancelled by client", r.Method, r.URL.Path)
	default:
		mc.logger.Errorf(providers.TypeApp, "%s %s failed: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// allow applies the creator's token bucket and answers 429 when it is empty.
func (mc *MemoryController) allow(w http.ResponseWriter, r *http.Request, kind providers.OperationKind) bool {
	ok, wait := mc.limiter.Allow(creatorID(r), kind)
	if ok {
		return true
	}
	mc.metrics.IncRateLimited(string(kind))
	mc.writeError(w, r, &models.RateLimitError{RetryAfter: wait})
	return false
}

func decode(w http.ResponseWriter, r *http.Request, dest any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &models.ValidationError{Fields: map[string]string{"body": "malformed JSON"}}
	}
	return nil
}

func (mc *MemoryController) GetMemory(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationRead) {
		return
	}
	p, err := persona(r)
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	memory, err := mc.service.GetMemoryContext(r.Context(), pairKey(r), p)
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

func (mc *MemoryController) SaveInteraction(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationWrite) {
		return
	}
	var payload models.Interaction
	if err := decode(w, r, &payload); err != nil {
		mc.writeError(w, r, err)
		return
	}
	key := pairKey(r)
	payload.FanID = key.FanID
	if payload.CreatorID == "" {
		payload.CreatorID = key.CreatorID
	} else if key.CreatorID != "" && payload.CreatorID != key.CreatorID {
		mc.writeError(w, r, &models.ValidationError{Fields: map[string]string{"creatorId": "creatorId does not match the request creator"}})
		return
	}
	saved, err := mc.service.SaveInteraction(r.Context(), &payload)
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (mc *MemoryController) ClearMemory(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationWrite) {
		return
	}
	req, err := mc.service.ClearMemory(r.Context(), pairKey(r), actor(r))
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (mc *MemoryController) GetEngagement(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationRead) {
		return
	}
	key := pairKey(r)
	score, err := mc.service.GetEngagementScore(r.Context(), key)
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, engagementResponse{FanID: key.FanID, CreatorID: key.CreatorID, EngagementScore: score})
}

func (mc *MemoryController) OverridePreferences(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationWrite) {
		return
	}
	var override models.PreferenceOverride
	if err := decode(w, r, &override); err != nil {
		mc.writeError(w, r, err)
		return
	}
	prefs, err := mc.service.OverridePreferences(r.Context(), pairKey(r), &override, actor(r))
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (mc *MemoryController) UnpinPreference(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationWrite) {
		return
	}
	category := models.ContentCategory(r.PathValue("category"))
	prefs, err := mc.service.UnpinPreference(r.Context(), pairKey(r), category, actor(r))
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (mc *MemoryController) OverridePersonality(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationWrite) {
		return
	}
	var override models.PersonalityOverride
	if err := decode(w, r, &override); err != nil {
		mc.writeError(w, r, err)
		return
	}
	profile, err := mc.service.OverridePersonality(r.Context(), pairKey(r), &override, actor(r))
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (mc *MemoryController) UnpinPersonality(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationWrite) {
		return
	}
	field := models.PersonalityField(r.PathValue("field"))
	profile, err := mc.service.UnpinPersonality(r.Context(), pairKey(r), field, actor(r))
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (mc *MemoryController) Recommend(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationRead) {
		return
	}
	var payload recommendRequest
	if err := decode(w, r, &payload); err != nil {
		mc.writeError(w, r, err)
		return
	}
	result, err := mc.service.Recommend(r.Context(), pairKey(r), payload.Items)
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (mc *MemoryController) Export(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationRead) {
		return
	}
	export, path, err := mc.service.ExportMemory(r.Context(), pairKey(r), actor(r))
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Export: export, ArchivePath: path})
}

func (mc *MemoryController) Stats(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationRead) {
		return
	}
	stats, err := mc.service.CreatorStats(r.Context(), creatorID(r))
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (mc *MemoryController) Bulk(w http.ResponseWriter, r *http.Request) {
	if !mc.allow(w, r, providers.OperationRead) {
		return
	}
	var payload bulkRequest
	if err := decode(w, r, &payload); err != nil {
		mc.writeError(w, r, err)
		return
	}
	if len(payload.FanIDs) == 0 {
		mc.writeError(w, r, &models.ValidationError{Fields: map[string]string{"fanIds": "at least one fan id is required"}})
		return
	}
	result, err := mc.service.BulkMemoryContext(r.Context(), creatorID(r), payload.FanIDs, payload.Persona)
	if err != nil {
		mc.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
