package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/blacktop/crosspost/internal/config"
	"github.com/blacktop/crosspost/internal/crosspost"
	"github.com/blacktop/crosspost/internal/logutil"
)

const maxBodyBytes = 1 << 20

type settingsView struct {
	ProfileID               string `json:"profile_id"`
	AppPasswordSet          bool   `json:"app_password_set"`
	DisableScheduledPosting bool   `json:"disable_scheduled_posting"`
	CronURL                 string `json:"cron_url,omitempty"`
}

type settingsForm struct {
	ProfileID               string `json:"profile_id"`
	AppPassword             string `json:"app_password"`
	DisableScheduledPosting bool   `json:"disable_scheduled_posting"`
}

type postPayload struct {
	ID               int64    `json:"id"`
	AuthorID         string   `json:"author_id"`
	Title            string   `json:"title"`
	Excerpt          string   `json:"excerpt"`
	Content          string   `json:"content"`
	Tags             []string `json:"tags"`
	FeaturedImageURL string   `json:"featured_image_url"`
	Status           string   `json:"status"`
}

type savePostRequest struct {
	Post      postPayload `json:"post"`
	Update    bool        `json:"update"`
	Crosspost string      `json:"bluesky_crosspost"`
}

type outcomeView struct {
	Posted  bool   `json:"posted"`
	URL     string `json:"url,omitempty"`
	Skipped string `json:"skipped,omitempty"`
	Notice  string `json:"notice,omitempty"`
}

func (s *Server) requireCapability(w http.ResponseWriter, r *http.Request, capability string) (*Principal, bool) {
	p := s.auth.Authenticate(r)
	if p == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	if capability != "" && !p.Can(capability) {
		writeError(w, http.StatusForbidden, "Sorry, you are not allowed to do that")
		return nil, false
	}
	return p, true
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireCapability(w, r, config.CapManageOptions); !ok {
		return
	}

	cfg, err := s.store.LoadConfig(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	view := settingsView{
		ProfileID:               cfg.ProfileID,
		AppPasswordSet:          cfg.AppPassword != "",
		DisableScheduledPosting: cfg.DisableScheduledPosting,
	}
	if cfg.DisableScheduledPosting {
		view.CronURL = s.baseURL(r) + cronPath
	}
	writeSuccess(w, view)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireCapability(w, r, config.CapManageOptions)
	if !ok {
		return
	}

	form, err := decodeSettings(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := s.store.LoadConfig(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	next := crosspost.Config{
		ProfileID:               strings.TrimSpace(form.ProfileID),
		AppPassword:             strings.TrimSpace(form.AppPassword),
		DisableScheduledPosting: form.DisableScheduledPosting,
	}
	if next.AppPassword == "" {
		next.AppPassword = current.AppPassword
	}

	if err := s.store.SaveConfig(r.Context(), next); err != nil {
		s.internalError(w, err)
		return
	}
	logutil.Infof("settings updated by %s", p.Name)

	view := settingsView{
		ProfileID:               next.ProfileID,
		AppPasswordSet:          next.AppPassword != "",
		DisableScheduledPosting: next.DisableScheduledPosting,
	}
	if next.DisableScheduledPosting {
		view.CronURL = s.baseURL(r) + cronPath
	}
	writeSuccess(w, view)
}

func decodeSettings(w http.ResponseWriter, r *http.Request) (settingsForm, error) {
	var form settingsForm
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			return settingsForm{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		return form, nil
	}

	if err := r.ParseForm(); err != nil {
		return settingsForm{}, fmt.Errorf("invalid form body: %w", err)
	}
	form.ProfileID = r.PostForm.Get("profile_id")
	form.AppPassword = r.PostForm.Get("app_password")
	form.DisableScheduledPosting = checked(r.PostForm.Get("disable_scheduled_posting"))
	return form, nil
}

func (s *Server) handleSavePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireCapability(w, r, "")
	if !ok {
		return
	}

	var req savePostRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Post.ID <= 0 {
		writeError(w, http.StatusBadRequest, "No post ID specified")
		return
	}

	incoming := crosspost.Post{
		ID:               req.Post.ID,
		AuthorID:         req.Post.AuthorID,
		Title:            req.Post.Title,
		Excerpt:          req.Post.Excerpt,
		Content:          req.Post.Content,
		Tags:             req.Post.Tags,
		FeaturedImageURL: req.Post.FeaturedImageURL,
		Status:           req.Post.Status,
	}

	owner := incoming
	if existing, err := s.store.GetPost(r.Context(), incoming.ID); err == nil {
		owner = existing
	} else if !errors.Is(err, crosspost.ErrPostNotFound) {
		s.internalError(w, err)
		return
	}
	if !p.CanEditPost(owner) {
		writeError(w, http.StatusForbidden, "Sorry, you are not allowed to edit this post")
		return
	}

	if err := s.store.UpsertPost(r.Context(), incoming); err != nil {
		s.internalError(w, err)
		return
	}
	post, err := s.store.GetPost(r.Context(), incoming.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	out, err := s.dispatcher.HandlePublish(r.Context(), post, crosspost.Flags{
		Crosspost: checked(req.Crosspost),
		Update:    req.Update,
	})
	if err != nil {
		s.dispatchError(w, out, err)
		return
	}

	view := outcomeView{Posted: out.Posted, URL: out.URL, Skipped: string(out.Skipped)}
	if out.Posted {
		view.Notice = "Post successfully cross-posted to Bluesky: " + out.URL
	}
	writeSuccess(w, view)
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireCapability(w, r, "")
	if !ok {
		return
	}
	action := r.URL.Query().Get("action")
	if action == "" {
		action = ManualPostAction
	}
	writeSuccess(w, map[string]string{"nonce": s.nonces.Create(action, p.Name)})
}

func (s *Server) handleManualPost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireCapability(w, r, "")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	rawID := strings.TrimSpace(r.PostForm.Get("post_id"))
	if rawID == "" {
		writeError(w, http.StatusBadRequest, "No post ID specified")
		return
	}
	if !s.nonces.Verify(r.PostForm.Get("nonce"), ManualPostAction, p.Name) {
		writeError(w, http.StatusForbidden, "The link you followed has expired")
		return
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	post, err := s.store.GetPost(r.Context(), id)
	if errors.Is(err, crosspost.ErrPostNotFound) {
		writeError(w, http.StatusNotFound, "Invalid post ID")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !p.CanEditPost(post) {
		writeError(w, http.StatusForbidden, "Sorry, you are not allowed to edit this post")
		return
	}

	out, err := s.dispatcher.ManualPost(r.Context(), id)
	if err != nil {
		s.dispatchError(w, out, err)
		return
	}
	writeSuccess(w, map[string]string{"url": out.URL})
}

func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireCapability(w, r, "")
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	post, err := s.store.GetPost(r.Context(), id)
	if errors.Is(err, crosspost.ErrPostNotFound) {
		writeError(w, http.StatusNotFound, "Invalid post ID")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !p.CanEditPost(post) {
		writeError(w, http.StatusForbidden, "Sorry, you are not allowed to edit this post")
		return
	}

	writeSuccess(w, outcomeView{Posted: post.Posted(), URL: post.CrosspostURL})
}

// handleCron is reserved for external schedulers and does nothing yet.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	logutil.Debugf("cron endpoint triggered from %s", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dispatchError(w http.ResponseWriter, out crosspost.Outcome, err error) {
	var missing crosspost.MissingCredentialsError
	switch {
	case errors.Is(err, crosspost.ErrPostNotFound):
		writeError(w, http.StatusNotFound, "Invalid post ID")
	case errors.As(err, &missing):
		writeError(w, http.StatusPreconditionFailed, "Bluesky credentials are not configured")
	case crosspost.IsPostFailure(err):
		writeError(w, http.StatusBadGateway, crosspost.FailureMessage)
	case out.Posted:
		logutil.Errorf("cross-posted to %s but could not record it: %v", out.URL, err)
		writeError(w, http.StatusInternalServerError, "Cross-posted to Bluesky but the URL could not be saved")
	default:
		s.internalError(w, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	logutil.Errorf("request failed: %v", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func checked(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "1", "true", "yes":
		return true
	}
	return false
}
