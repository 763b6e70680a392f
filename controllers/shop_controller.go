package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/danz-app/danz/services"
	"github.com/danz-app/danz/utils"
)

// ShopController sells items for DANZ and manages the inventory.
type ShopController struct {
	shop *services.ShopService
}

// NewShopController creates a new ShopController instance.
func NewShopController(shop *services.ShopService) *ShopController {
	return &ShopController{shop: shop}
}

// ListItems returns the catalog, optionally filtered by ?category=.
func (s *ShopController) ListItems(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"items": s.shop.Catalog(strings.TrimSpace(ctx.Query("category")))})
}

// Inventory lists what the caller owns.
func (s *ShopController) Inventory(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	items, err := s.shop.Inventory(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50070, "failed to load inventory")
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// Purchase buys qty units of an item.
func (s *ShopController) Purchase(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req struct {
		ItemID   string `json:"item_id" binding:"required"`
		Quantity int    `json:"quantity"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	entry, err := s.shop.Purchase(ctx.Request.Context(), userID, strings.TrimSpace(req.ItemID), req.Quantity)
	if err != nil {
		respondServiceError(ctx, err, 50071, "failed to purchase item")
		return
	}
	utils.Created(ctx, entry)
}

// Activate starts a timed item or applies a party upgrade.
func (s *ShopController) Activate(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	invID, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}
	entry, err := s.shop.Activate(ctx.Request.Context(), userID, invID)
	if err != nil {
		respondServiceError(ctx, err, 50072, "failed to activate item")
		return
	}
	utils.Success(ctx, entry)
}
