// Package httpserver exposes the gamification engine over a JSON API.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/EcoCampusLab/gamify/pkg/badge"
	"github.com/EcoCampusLab/gamify/pkg/challenge"
	"github.com/EcoCampusLab/gamify/pkg/gamify"
	"github.com/EcoCampusLab/gamify/pkg/leaderboard"
	"github.com/EcoCampusLab/gamify/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Run boots the HTTP façade and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config, engine *gamify.Engine, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	router := NewRouter(cfg, engine, logger)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin router serving the engine.
func NewRouter(cfg Config, engine *gamify.Engine, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler := &httpHandler{engine: engine, logger: logger}

	api := router.Group("/api")

	api.POST("/points/adjust", handler.handleAdjust)
	api.POST("/points/settle", handler.handleSettle)
	api.POST("/points/redeem", handler.handleRedeem)
	api.GET("/points/balance", handler.handleBalance)
	api.GET("/points/history", handler.handleHistory)

	api.GET("/leaderboard", handler.handleRankings)
	api.GET("/leaderboard/top", handler.handleTopUsers)
	api.POST("/leaderboard/rewards", handler.handleRecordReward)

	api.POST("/challenges/:id/join", handler.handleChallengeJoin)
	api.POST("/challenges/:id/leave", handler.handleChallengeLeave)
	api.GET("/challenges/:id/progress", handler.handleChallengeProgress)
	api.GET("/challenges/:id/participants", handler.handleChallengeParticipants)
	api.POST("/challenges/:id/claim", handler.handleChallengeClaim)

	api.GET("/badges/shop", handler.handleBadgeShop)
	api.GET("/badges/mine", handler.handleMyBadges)
	api.POST("/badges/:id/purchase", handler.handleBadgePurchase)
	api.POST("/badges/:id/display", handler.handleBadgeDisplay)
	api.POST("/badges/unlock", handler.handleBadgeUnlock)

	return router
}

type httpHandler struct {
	engine *gamify.Engine
	logger *zap.Logger
}

type adjustRequest struct {
	UserID      string              `json:"user_id"`
	Points      int64               `json:"points"`
	Source      string              `json:"source"`
	Description string              `json:"description"`
	RelatedID   string              `json:"related_id"`
	Admin       *ledger.AdminAction `json:"admin,omitempty"`
}

func (handler *httpHandler) handleAdjust(ctx *gin.Context) {
	var request adjustRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, source, ok := handler.bindUserAndSource(ctx, request.UserID, request.Source)
	if !ok {
		return
	}
	entry, err := handler.engine.Ledger.Adjust(ctx.Request.Context(), userID, ledger.AdjustInput{
		Points:      request.Points,
		Source:      source,
		Description: request.Description,
		RelatedID:   request.RelatedID,
		Admin:       request.Admin,
	})
	if err != nil {
		handler.respondError(ctx, "adjust", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": entryPayloadFrom(entry)})
}

type settleRequest struct {
	UserID      string  `json:"user_id"`
	Points      int64   `json:"points"`
	Source      string  `json:"source"`
	Description string  `json:"description"`
	RelatedID   string  `json:"related_id"`
	CarbonSaved float64 `json:"carbon_saved"`
}

func (handler *httpHandler) handleSettle(ctx *gin.Context) {
	var request settleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, source, ok := handler.bindUserAndSource(ctx, request.UserID, request.Source)
	if !ok {
		return
	}
	entry, err := handler.engine.Ledger.Settle(ctx.Request.Context(), userID, ledger.SettleInput{
		Points:      request.Points,
		Source:      source,
		Description: request.Description,
		RelatedID:   request.RelatedID,
		CarbonSaved: request.CarbonSaved,
	})
	if err != nil {
		handler.respondError(ctx, "settle", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": entryPayloadFrom(entry)})
}

type redeemRequest struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
	Points  int64  `json:"points"`
}

func (handler *httpHandler) handleRedeem(ctx *gin.Context) {
	var request redeemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return
	}
	entry, err := handler.engine.Ledger.Redeem(ctx.Request.Context(), userID, request.OrderID, request.Points)
	if err != nil {
		handler.respondError(ctx, "redeem", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": entryPayloadFrom(entry)})
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Query("user_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return
	}
	balance, err := handler.engine.Ledger.CurrentBalance(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, "balance", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"current_points":      balance.CurrentPoints,
		"total_points_earned": balance.TotalPointsEarned,
		"total_carbon_saved":  balance.TotalCarbonSaved,
	})
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Query("user_id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return
	}
	page := intQuery(ctx, "page", 1)
	size := intQuery(ctx, "size", 0)
	history, err := handler.engine.Ledger.History(ctx.Request.Context(), userID, page, size)
	if err != nil {
		handler.respondError(ctx, "history", err)
		return
	}
	entries := make([]gin.H, 0, len(history.Entries))
	for _, entry := range history.Entries {
		entries = append(entries, entryPayloadFrom(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   history.Total,
	})
}

func (handler *httpHandler) handleRankings(ctx *gin.Context) {
	periodType, err := leaderboard.ParsePeriodType(ctx.DefaultQuery("type", string(leaderboard.PeriodDaily)))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_period_type", err.Error()))
		return
	}
	var date time.Time
	if raw := ctx.Query("date"); raw != "" {
		date, err = time.Parse("2006-01-02", raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", "expected YYYY-MM-DD"))
			return
		}
	}
	board, err := handler.engine.Leaderboard.Rankings(ctx.Request.Context(), leaderboard.Query{
		Type:       periodType,
		Date:       date,
		NameFilter: ctx.Query("name"),
		Page:       intQuery(ctx, "page", 1),
		Size:       intQuery(ctx, "size", 0),
	})
	if err != nil {
		handler.respondError(ctx, "rankings", err)
		return
	}
	entries := make([]gin.H, 0, len(board.Entries))
	for _, entry := range board.Entries {
		entries = append(entries, gin.H{
			"rank":          entry.Rank,
			"user_id":       entry.UserID,
			"nickname":      entry.Nickname,
			"vip":           entry.VIP,
			"carbon_saved":  entry.CarbonSaved,
			"reward_points": entry.RewardPoints,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"entries":            entries,
		"total":              board.Total,
		"total_carbon_saved": board.TotalCarbonSaved,
		"total_vip_users":    board.TotalVIPUsers,
		"rewards_issued":     board.RewardsIssued,
		"period_key":         board.PeriodKey,
	})
}

func (handler *httpHandler) handleTopUsers(ctx *gin.Context) {
	start, err := time.Parse(time.RFC3339, ctx.Query("start"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_window", "expected RFC3339 start"))
		return
	}
	end, err := time.Parse(time.RFC3339, ctx.Query("end"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_window", "expected RFC3339 end"))
		return
	}
	top, err := handler.engine.Leaderboard.TopUsers(ctx.Request.Context(), start, end, intQuery(ctx, "limit", 0))
	if err != nil {
		handler.respondError(ctx, "top users", err)
		return
	}
	users := make([]gin.H, 0, len(top))
	for _, user := range top {
		users = append(users, gin.H{
			"rank":         user.Rank,
			"user_id":      user.UserID,
			"carbon_saved": user.CarbonSaved,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"users": users})
}

type rewardRequest struct {
	Type          string `json:"type"`
	PeriodKey     string `json:"period_key"`
	UserID        string `json:"user_id"`
	Rank          int    `json:"rank"`
	PointsAwarded int64  `json:"points_awarded"`
}

func (handler *httpHandler) handleRecordReward(ctx *gin.Context) {
	var request rewardRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	periodType, err := leaderboard.ParsePeriodType(request.Type)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_period_type", err.Error()))
		return
	}
	err = handler.engine.Leaderboard.RecordReward(ctx.Request.Context(), leaderboard.RewardRecord{
		Type:          periodType,
		PeriodKey:     request.PeriodKey,
		UserID:        request.UserID,
		Rank:          request.Rank,
		PointsAwarded: request.PointsAwarded,
	})
	if err != nil {
		handler.respondError(ctx, "record reward", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

type challengeUserRequest struct {
	UserID string `json:"user_id"`
}

func (handler *httpHandler) handleChallengeJoin(ctx *gin.Context) {
	var request challengeUserRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	progress, err := handler.engine.Challenges.Join(ctx.Request.Context(), ctx.Param("id"), request.UserID)
	if err != nil {
		handler.respondError(ctx, "challenge join", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"challenge_id":    progress.ChallengeID,
		"user_id":         progress.UserID,
		"status":          progress.Status,
		"joined_unix_utc": progress.JoinedUnixUTC,
	})
}

func (handler *httpHandler) handleChallengeLeave(ctx *gin.Context) {
	var request challengeUserRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := handler.engine.Challenges.Leave(ctx.Request.Context(), ctx.Param("id"), request.UserID); err != nil {
		handler.respondError(ctx, "challenge leave", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (handler *httpHandler) handleChallengeProgress(ctx *gin.Context) {
	view, err := handler.engine.Challenges.Progress(ctx.Request.Context(), ctx.Param("id"), ctx.Query("user_id"))
	if err != nil {
		handler.respondError(ctx, "challenge progress", err)
		return
	}
	ctx.JSON(http.StatusOK, challengeViewPayload(view))
}

func (handler *httpHandler) handleChallengeParticipants(ctx *gin.Context) {
	views, err := handler.engine.Challenges.ListParticipants(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "challenge participants", err)
		return
	}
	participants := make([]gin.H, 0, len(views))
	for _, view := range views {
		participants = append(participants, challengeViewPayload(view))
	}
	ctx.JSON(http.StatusOK, gin.H{"participants": participants})
}

func (handler *httpHandler) handleChallengeClaim(ctx *gin.Context) {
	var request challengeUserRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	points, err := handler.engine.Challenges.ClaimReward(ctx.Request.Context(), ctx.Param("id"), request.UserID)
	if err != nil {
		handler.respondError(ctx, "challenge claim", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"points_awarded": points})
}

func (handler *httpHandler) handleBadgeShop(ctx *gin.Context) {
	items, err := handler.engine.Badges.ShopList(ctx.Request.Context(), ctx.Query("user_id"))
	if err != nil {
		handler.respondError(ctx, "badge shop", err)
		return
	}
	payload := make([]gin.H, 0, len(items))
	for _, item := range items {
		payload = append(payload, gin.H{
			"badge_id":           item.Definition.BadgeID,
			"name":               item.Definition.Name,
			"sub_category":       item.Definition.SubCategory,
			"purchase_cost":      item.Definition.PurchaseCost,
			"acquisition_method": item.Definition.AcquisitionMethod,
			"carbon_threshold":   item.Definition.CarbonThreshold,
			"owned":              item.Owned,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"items": payload})
}

func (handler *httpHandler) handleMyBadges(ctx *gin.Context) {
	owned, err := handler.engine.Badges.MyBadges(ctx.Request.Context(), ctx.Query("user_id"))
	if err != nil {
		handler.respondError(ctx, "my badges", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"badges": ownedBadgePayloads(owned)})
}

func (handler *httpHandler) handleBadgePurchase(ctx *gin.Context) {
	var request challengeUserRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	owned, err := handler.engine.Badges.Purchase(ctx.Request.Context(), request.UserID, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "badge purchase", err)
		return
	}
	ctx.JSON(http.StatusOK, ownedBadgePayload(owned))
}

type displayRequest struct {
	UserID  string `json:"user_id"`
	Display bool   `json:"display"`
}

func (handler *httpHandler) handleBadgeDisplay(ctx *gin.Context) {
	var request displayRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	err := handler.engine.Badges.ToggleDisplay(ctx.Request.Context(), request.UserID, ctx.Param("id"), request.Display)
	if err != nil {
		handler.respondError(ctx, "badge display", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleBadgeUnlock(ctx *gin.Context) {
	var request challengeUserRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	unlocked, err := handler.engine.Badges.AutoUnlockAchievements(ctx.Request.Context(), request.UserID)
	if err != nil {
		handler.respondError(ctx, "badge unlock", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"unlocked": ownedBadgePayloads(unlocked)})
}

func (handler *httpHandler) bindUserAndSource(ctx *gin.Context, rawUserID string, rawSource string) (ledger.UserID, ledger.Source, bool) {
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return ledger.UserID{}, ledger.Source{}, false
	}
	source, err := ledger.NewSource(rawSource)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_source", err.Error()))
		return ledger.UserID{}, ledger.Source{}, false
	}
	return userID, source, true
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	status, code := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error(operation+" failed", zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, ledger.ErrBalanceConflict):
		return http.StatusConflict, "balance_conflict"
	case errors.Is(err, ledger.ErrInvalidUserID),
		errors.Is(err, ledger.ErrInvalidSource),
		errors.Is(err, ledger.ErrInvalidPoints),
		errors.Is(err, ledger.ErrInvalidRelatedID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, leaderboard.ErrInvalidPeriodType),
		errors.Is(err, leaderboard.ErrInvalidWindow),
		errors.Is(err, leaderboard.ErrInvalidRewardRecord):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, leaderboard.ErrRewardAlreadyIssued):
		return http.StatusConflict, "reward_already_issued"
	case errors.Is(err, challenge.ErrChallengeNotFound):
		return http.StatusNotFound, "challenge_not_found"
	case errors.Is(err, challenge.ErrChallengeNotActive),
		errors.Is(err, challenge.ErrChallengeExpired):
		return http.StatusConflict, "challenge_unavailable"
	case errors.Is(err, challenge.ErrAlreadyJoined):
		return http.StatusConflict, "already_joined"
	case errors.Is(err, challenge.ErrNotJoined):
		return http.StatusNotFound, "not_joined"
	case errors.Is(err, challenge.ErrNotCompleted):
		return http.StatusConflict, "challenge_not_completed"
	case errors.Is(err, challenge.ErrRewardAlreadyClaimed):
		return http.StatusConflict, "reward_already_claimed"
	case errors.Is(err, badge.ErrBadgeNotFound):
		return http.StatusNotFound, "badge_not_found"
	case errors.Is(err, badge.ErrBadgeNotOwned):
		return http.StatusNotFound, "badge_not_owned"
	case errors.Is(err, badge.ErrAlreadyOwned):
		return http.StatusConflict, "badge_already_owned"
	case errors.Is(err, badge.ErrNotPurchasable):
		return http.StatusConflict, "badge_not_purchasable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func entryPayloadFrom(entry ledger.Entry) gin.H {
	return gin.H{
		"entry_id":         entry.EntryID,
		"user_id":          entry.UserID,
		"change_type":      entry.Change,
		"points":           entry.Points,
		"source":           entry.Source,
		"description":      entry.Description,
		"related_id":       entry.RelatedID,
		"balance_after":    entry.BalanceAfter,
		"created_unix_utc": entry.CreatedUnixUTC,
	}
}

func challengeViewPayload(view challenge.View) gin.H {
	return gin.H{
		"challenge_id":       view.ChallengeID,
		"title":              view.Title,
		"type":               view.Type,
		"user_id":            view.UserID,
		"target":             view.Target,
		"current":            view.Current,
		"percent":            view.Percent,
		"status":             view.Status,
		"reward_points":      view.RewardPoints,
		"reward_claimed":     view.RewardClaimed,
		"joined_unix_utc":    view.JoinedUnixUTC,
		"completed_unix_utc": view.CompletedUnixUTC,
	}
}

func ownedBadgePayload(owned badge.OwnedBadge) gin.H {
	return gin.H{
		"badge_id":          owned.BadgeID,
		"sub_category":      owned.SubCategory,
		"displayed":         owned.Displayed,
		"unlocked_unix_utc": owned.UnlockedUnixUTC,
	}
}

func ownedBadgePayloads(owned []badge.OwnedBadge) []gin.H {
	payload := make([]gin.H, 0, len(owned))
	for _, record := range owned {
		payload = append(payload, ownedBadgePayload(record))
	}
	return payload
}

func intQuery(ctx *gin.Context, key string, fallback int) int {
	raw := ctx.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
