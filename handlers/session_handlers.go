package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"rollcall-picker/db"
	"rollcall-picker/models"
	"rollcall-picker/session"
)

// sessionView is a session state with avatar URLs filled in
type sessionView struct {
	session.State
	Students []studentView `json:"students"`
	Winner   *studentView  `json:"winner,omitempty"`
}

func (h *APIHandler) sessionView(st session.State) sessionView {
	v := sessionView{State: st, Students: h.views(st.Students)}
	if st.Winner != nil {
		w := h.view(*st.Winner)
		v.Winner = &w
	}
	return v
}

// openSession returns the live session for a section, loading the roster
// the first time it is opened
func (h *APIHandler) openSession(ctx context.Context, section string) (*session.Controller, session.State, error) {
	ctrl := h.Sessions.Get(section)
	st, err := ctrl.State()
	if err != nil {
		return nil, session.State{}, err
	}
	if st.Classroom != nil {
		return ctrl, st, nil
	}

	st, err = ctrl.Load(ctx)
	switch {
	case errors.Is(err, session.ErrStaleLoad):
		// a concurrent request loaded it first
		st, err = ctrl.State()
	case errors.Is(err, db.ErrNotFound):
		h.Sessions.Drop(section)
	}
	if err != nil {
		return nil, session.State{}, err
	}
	return ctrl, st, nil
}

// GetSession handles GET /api/sessions/:section
func (h *APIHandler) GetSession(c *gin.Context) {
	_, st, err := h.openSession(c.Request.Context(), c.Param("section"))
	if err != nil {
		respondError(c, "GetSession", err)
		return
	}
	c.JSON(http.StatusOK, h.sessionView(st))
}

// StartRandomizer handles POST /api/sessions/:section/start
func (h *APIHandler) StartRandomizer(c *gin.Context) {
	ctrl, _, err := h.openSession(c.Request.Context(), c.Param("section"))
	if err != nil {
		respondError(c, "StartRandomizer", err)
		return
	}
	started, err := ctrl.StartRandomizer()
	if err != nil {
		respondError(c, "StartRandomizer", err)
		return
	}
	st, err := ctrl.State()
	if err != nil {
		respondError(c, "StartRandomizer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started, "session": h.sessionView(st)})
}

// ResetSession handles POST /api/sessions/:section/reset
func (h *APIHandler) ResetSession(c *gin.Context) {
	h.sessionAction(c, "ResetSession", (*session.Controller).Reset)
}

// CloseWinner handles POST /api/sessions/:section/close-winner
func (h *APIHandler) CloseWinner(c *gin.Context) {
	h.sessionAction(c, "CloseWinner", (*session.Controller).CloseWinner)
}

// CancelEdit handles DELETE /api/sessions/:section/edit
func (h *APIHandler) CancelEdit(c *gin.Context) {
	h.sessionAction(c, "CancelEdit", (*session.Controller).CancelEdit)
}

func (h *APIHandler) sessionAction(c *gin.Context, op string, action func(*session.Controller) error) {
	ctrl, _, err := h.openSession(c.Request.Context(), c.Param("section"))
	if err != nil {
		respondError(c, op, err)
		return
	}
	if err := action(ctrl); err != nil {
		respondError(c, op, err)
		return
	}
	st, err := ctrl.State()
	if err != nil {
		respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, h.sessionView(st))
}

// OpenEdit handles POST /api/sessions/:section/edit/:id
func (h *APIHandler) OpenEdit(c *gin.Context) {
	ctrl, _, err := h.openSession(c.Request.Context(), c.Param("section"))
	if err != nil {
		respondError(c, "OpenEdit", err)
		return
	}
	ec, err := ctrl.EditStudent(c.Param("id"))
	if err != nil {
		respondError(c, "OpenEdit", err)
		return
	}
	c.JSON(http.StatusOK, ec)
}

// SaveEdit handles PATCH /api/sessions/:section/edit
func (h *APIHandler) SaveEdit(c *gin.Context) {
	var patch models.StudentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	ctrl, _, err := h.openSession(c.Request.Context(), c.Param("section"))
	if err != nil {
		respondError(c, "SaveEdit", err)
		return
	}
	student, err := ctrl.SaveEdit(c.Request.Context(), patch)
	if err != nil {
		respondError(c, "SaveEdit", err)
		return
	}
	c.JSON(http.StatusOK, h.view(*student))
}
