package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/dispatch"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/models"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/registry"
)

type handlers struct {
	engine   *dispatch.Engine
	registry *registry.Registry
	logger   *slog.Logger
}

type dispatchBody struct {
	Tokens  []string          `json:"tokens"`
	UserIDs []string          `json:"userIds"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Image   string            `json:"image"`
	Icon    string            `json:"icon"`
	Badge   string            `json:"badge"`
	Data    map[string]string `json:"data"`
}

func (h *handlers) dispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	data := body.Data
	if data == nil {
		data = map[string]string{}
	}
	resp, err := h.engine.Dispatch(r.Context(), dispatch.Request{
		Tokens:  body.Tokens,
		UserIDs: body.UserIDs,
		Message: &models.Message{
			Title: body.Title,
			Body:  body.Body,
			Image: body.Image,
			Icon:  body.Icon,
			Badge: body.Badge,
			Data:  data,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNoTargets):
			writeError(w, http.StatusBadRequest, "NO_TARGETS", err.Error())
		case errors.Is(err, dispatch.ErrNoMessage):
			writeError(w, http.StatusBadRequest, "NO_MESSAGE", err.Error())
		default:
			h.logger.Error("dispatch request failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "DISPATCH_FAILED", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type registerBody struct {
	UserID     string `json:"userId"`
	Token      string `json:"token"`
	DeviceID   string `json:"deviceId"`
	Origin     string `json:"origin"`
	UserAgent  string `json:"userAgent"`
	Permission string `json:"permission"`
}

// register stores a device token. Permission and environment failures from
// the browser are echoed back as distinct states rather than silently
// dropped; a registry write failure is logged and leaves the device simply
// unregistered.
func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "NO_USER", "userId is required")
		return
	}

	switch strings.ToLower(body.Permission) {
	case "unsupported":
		writeError(w, http.StatusUnprocessableEntity, "PUSH_UNSUPPORTED", "browser does not support push")
		return
	case "blocked":
		writeError(w, http.StatusUnprocessableEntity, "PERMISSION_BLOCKED", "notification permission is blocked")
		return
	case "denied":
		writeError(w, http.StatusUnprocessableEntity, "PERMISSION_DENIED", "notification permission was denied")
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusUnprocessableEntity, "NO_TOKEN", "provider returned no token")
		return
	}

	if err := h.registry.Register(r.Context(), body.UserID, body.Token, body.DeviceID, body.Origin, body.UserAgent); err != nil {
		h.logger.Error("token registration failed",
			slog.String("user_id", body.UserID), slog.Any("error", err))
		writeJSON(w, http.StatusOK, map[string]bool{"registered": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": true})
}

type deleteTokensBody struct {
	Tokens []string `json:"tokens"`
}

func (h *handlers) deleteTokens(w http.ResponseWriter, r *http.Request) {
	var body deleteTokensBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	removed, err := h.registry.DeleteTokens(r.Context(), body.Tokens)
	if err != nil {
		h.logger.Error("token deletion failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "DELETE_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
