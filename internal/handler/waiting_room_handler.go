package handler

import (
	"hospital-waiting-room/internal/waitingroom"
	"hospital-waiting-room/pkg/utils"

	"github.com/gin-gonic/gin"
)

// SnapshotSource provides what the waiting-room screen shows
type SnapshotSource interface {
	Snapshot() waitingroom.Snapshot
}

type WaitingRoomHandler struct {
	display SnapshotSource
}

func NewWaitingRoomHandler(display SnapshotSource) *WaitingRoomHandler {
	return &WaitingRoomHandler{display: display}
}

// GetWaitingRoom returns the waiting queue and the patient currently called in
func (h *WaitingRoomHandler) GetWaitingRoom(c *gin.Context) {
	utils.SuccessResponse(c, h.display.Snapshot())
}
