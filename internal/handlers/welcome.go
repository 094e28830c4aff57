package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/careerhub/internal/onboarding"
	"github.com/charlesng35/careerhub/internal/services"
	appErrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/response"
)

const alreadyClaimedMessage = "Welcome bonus already claimed"

// BonusClaimer runs the claim path of the onboarding sequence.
type BonusClaimer interface {
	Claim(ctx context.Context, userID string) (onboarding.ClaimResult, error)
}

// WelcomeStatusChecker answers and invalidates cached welcome status.
type WelcomeStatusChecker interface {
	CheckStatus(ctx context.Context, userID string) (services.WelcomeStatus, error)
	Invalidate(ctx context.Context, userID string)
}

// WelcomeHandler serves the welcome status probe and the bonus claim.
type WelcomeHandler struct {
	claimer BonusClaimer
	status  WelcomeStatusChecker
}

type bonusResponse struct {
	Success  bool   `json:"success"`
	Coins    int64  `json:"coins,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Message  string `json:"message,omitempty"`
}

// NewWelcomeHandler constructs the handler.
func NewWelcomeHandler(claimer BonusClaimer, status WelcomeStatusChecker) (*WelcomeHandler, error) {
	if claimer == nil {
		return nil, errors.New("welcome handler: claimer is required")
	}
	if status == nil {
		return nil, errors.New("welcome handler: status service is required")
	}
	return &WelcomeHandler{claimer: claimer, status: status}, nil
}

// GET /api/welcome/status?user_id=
func (h *WelcomeHandler) Status(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		response.Error(c, appErrors.NewBadRequest("user_id is required"))
		return
	}

	status, err := h.status.CheckStatus(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// POST /api/welcome/bonus
func (h *WelcomeHandler) Bonus(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	result, err := h.claimer.Claim(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.status.Invalidate(ctx, userID)

	if !result.Granted {
		response.Success(c, http.StatusOK, bonusResponse{
			Success: false,
			Message: alreadyClaimedMessage,
		})
		return
	}

	response.Success(c, http.StatusOK, bonusResponse{
		Success:  true,
		Coins:    result.Amount,
		UserID:   result.UserID,
		UserName: result.UserName,
	})
}
