package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/newroots/portfolio/internal/mailer"
	"github.com/newroots/portfolio/internal/models"
	"github.com/newroots/portfolio/internal/store"
)

type contentReq struct {
	Slug string          `json:"slug"`
	Data json.RawMessage `json:"data"`
}

type contactReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Phone   string `json:"phone"`
}

// handleGetContent lists all items in a section.
func handleGetContent(w http.ResponseWriter, r *http.Request) {
	var (
		app     = r.Context().Value("app").(*App)
		section = chi.URLParam(r, "section")
	)

	if !validSection(app, section) {
		sendErrorResponse(w, "Unknown section.", http.StatusNotFound, nil)
		return
	}

	items, err := app.store.Content(r.Context(), section)
	if err != nil {
		app.lo.Error("error listing content", "error", err, "section", section)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, items)
}

// handleGetContentItem fetches a single item.
func handleGetContentItem(w http.ResponseWriter, r *http.Request) {
	var (
		app     = r.Context().Value("app").(*App)
		section = chi.URLParam(r, "section")
		id      = chi.URLParam(r, "id")
	)

	if !validSection(app, section) {
		sendErrorResponse(w, "Unknown section.", http.StatusNotFound, nil)
		return
	}

	item, err := app.store.ContentItem(r.Context(), section, id)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			sendErrorResponse(w, "Item not found.", http.StatusNotFound, nil)
			return
		}
		app.lo.Error("error fetching content item", "error", err, "section", section, "id", id)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, item)
}

// handleCreateContent adds an item to a section.
func handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var (
		app     = r.Context().Value("app").(*App)
		section = chi.URLParam(r, "section")
	)

	if !validSection(app, section) {
		sendErrorResponse(w, "Unknown section.", http.StatusNotFound, nil)
		return
	}

	var req contentReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		sendErrorResponse(w, "Missing content data.", http.StatusBadRequest, nil)
		return
	}

	now := time.Now().UnixMilli()
	item := models.ContentItem{
		ID:        uuid.NewString(),
		Section:   section,
		Slug:      strings.TrimSpace(req.Slug),
		Data:      req.Data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := app.store.PutContent(r.Context(), item); err != nil {
		app.lo.Error("error writing content", "error", err, "section", section)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, item)
}

// handleUpdateContent replaces an item's payload.
func handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	var (
		app     = r.Context().Value("app").(*App)
		section = chi.URLParam(r, "section")
		id      = chi.URLParam(r, "id")
	)

	if !validSection(app, section) {
		sendErrorResponse(w, "Unknown section.", http.StatusNotFound, nil)
		return
	}

	var req contentReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		sendErrorResponse(w, "Missing content data.", http.StatusBadRequest, nil)
		return
	}

	if err := app.store.UpdateContent(r.Context(), section, id, req.Data, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			sendErrorResponse(w, "Item not found.", http.StatusNotFound, nil)
			return
		}
		app.lo.Error("error updating content", "error", err, "section", section, "id", id)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	item, err := app.store.ContentItem(r.Context(), section, id)
	if err != nil {
		app.lo.Error("error reloading content item", "error", err, "section", section, "id", id)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, item)
}

// handleDeleteContent removes an item.
func handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	var (
		app     = r.Context().Value("app").(*App)
		section = chi.URLParam(r, "section")
		id      = chi.URLParam(r, "id")
	)

	if !validSection(app, section) {
		sendErrorResponse(w, "Unknown section.", http.StatusNotFound, nil)
		return
	}

	if err := app.store.DeleteContent(r.Context(), section, id); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			sendErrorResponse(w, "Item not found.", http.StatusNotFound, nil)
			return
		}
		app.lo.Error("error deleting content", "error", err, "section", section, "id", id)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, true)
}

// handleContact accepts a contact-form message.
func handleContact(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	var req contactReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if !allowRate(w, r, "contact", clientIP(r)) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)

	if req.Name == "" || req.Subject == "" {
		sendErrorResponse(w, "Name and subject are required.", http.StatusBadRequest, nil)
		return
	}
	if err := mailer.ValidAddress(req.Email); err != nil {
		sendErrorResponse(w, "Invalid email address.", http.StatusBadRequest, nil)
		return
	}
	if len(req.Message) < 10 {
		sendErrorResponse(w, "Message should be at least 10 characters.", http.StatusBadRequest, nil)
		return
	}

	m := models.ContactMessage{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     strings.ToLower(req.Email),
		Subject:   req.Subject,
		Message:   req.Message,
		Phone:     strings.TrimSpace(req.Phone),
		Status:    "new",
		CreatedAt: time.Now().UnixMilli(),
	}

	if err := app.store.PutMessage(r.Context(), m); err != nil {
		app.lo.Error("error storing contact message", "error", err)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, "Thanks for reaching out. I'll get back to you soon.")
}

// handleGetMessages lists contact messages, newest first.
func handleGetMessages(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	msgs, err := app.store.Messages(r.Context())
	if err != nil {
		app.lo.Error("error listing contact messages", "error", err)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, msgs)
}

// handleGetMessage fetches a single contact message.
func handleGetMessage(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
		id  = chi.URLParam(r, "id")
	)

	m, err := app.store.Message(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			sendErrorResponse(w, "Message not found.", http.StatusNotFound, nil)
			return
		}
		app.lo.Error("error fetching contact message", "error", err, "id", id)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, m)
}

// messageStatuses are the triage states the inbox moves messages
// through.
var messageStatuses = map[string]bool{
	"new":      true,
	"read":     true,
	"replied":  true,
	"archived": true,
}

// handleSetMessageStatus updates a message's triage status.
func handleSetMessageStatus(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
		id  = chi.URLParam(r, "id")
	)

	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !messageStatuses[req.Status] {
		sendErrorResponse(w, "Invalid status.", http.StatusBadRequest, nil)
		return
	}

	if err := app.store.SetMessageStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			sendErrorResponse(w, "Message not found.", http.StatusNotFound, nil)
			return
		}
		app.lo.Error("error updating message status", "error", err, "id", id)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, true)
}

// handleDeleteMessage removes a contact message.
func handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	var (
		app = r.Context().Value("app").(*App)
		id  = chi.URLParam(r, "id")
	)

	if err := app.store.DeleteMessage(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			sendErrorResponse(w, "Message not found.", http.StatusNotFound, nil)
			return
		}
		app.lo.Error("error deleting contact message", "error", err, "id", id)
		sendErrorResponse(w, "Internal Server Error.", http.StatusInternalServerError, nil)
		return
	}

	sendResponse(w, true)
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	app := r.Context().Value("app").(*App)

	if err := app.store.Ping(r.Context()); err != nil {
		sendErrorResponse(w, "Unable to reach store.", http.StatusServiceUnavailable, nil)
		return
	}

	sendResponse(w, "OK")
}

func validSection(app *App, section string) bool {
	if section == "" {
		return false
	}
	if len(app.constants.Sections) == 0 {
		return true
	}
	for _, s := range app.constants.Sections {
		if s == section {
			return true
		}
	}
	return false
}
