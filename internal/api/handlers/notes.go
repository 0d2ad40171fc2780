package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/models"
	"github.com/langchou/carwatch/internal/repository"
)

// noteRequest 新增备注请求，odometer 可以是数字或数字字符串
type noteRequest struct {
	Date     string      `json:"date"`
	Note     string      `json:"note"`
	Odometer json.Number `json:"odometer"`
}

// ListNotes 获取车辆备注
// GET /notes/:vehicleId
func (h *Handler) ListNotes(c *gin.Context) {
	vehicleID := c.Param("vehicleId")

	notes, err := h.notes.Read(vehicleID)
	if err != nil {
		h.noteError(c, vehicleID, "Failed to read notes", err)
		return
	}

	c.JSON(http.StatusOK, notes)
}

// AddNote 新增车辆备注
// POST /notes/:vehicleId
func (h *Handler) AddNote(c *gin.Context) {
	vehicleID := c.Param("vehicleId")

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	date := strings.TrimSpace(req.Date)
	text := strings.TrimSpace(req.Note)
	if date == "" || text == "" || req.Odometer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide date, note, and odometer reading."})
		return
	}

	odometer, err := req.Odometer.Float64()
	if err != nil || odometer < 0 || math.IsInf(odometer, 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid odometer reading."})
		return
	}

	note, err := h.notes.Append(vehicleID, models.Note{
		Date:     date,
		Note:     text,
		Odometer: odometer,
	})
	if err != nil {
		h.noteError(c, vehicleID, "Failed to save note", err)
		return
	}

	h.logger.Info("Note added", zap.String("vehicle_id", vehicleID), zap.String("note_id", note.ID))
	c.JSON(http.StatusCreated, gin.H{"data": note})
}

// DeleteNote 按下标删除备注
// DELETE /notes/:vehicleId/:index
func (h *Handler) DeleteNote(c *gin.Context) {
	vehicleID := c.Param("vehicleId")

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid note index"})
		return
	}

	if err := h.notes.Delete(vehicleID, index); err != nil {
		h.noteError(c, vehicleID, "Failed to delete note", err)
		return
	}

	h.logger.Info("Note deleted", zap.String("vehicle_id", vehicleID), zap.Int("index", index))
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted"})
}

func (h *Handler) noteError(c *gin.Context, vehicleID, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidVehicleID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
	case errors.Is(err, repository.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Note not found"})
	default:
		h.logger.Error(msg, zap.String("vehicle_id", vehicleID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
