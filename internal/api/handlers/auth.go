package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carwatch/internal/api/smartcar"
	"github.com/langchou/carwatch/internal/models"
)

// Home 首页，列出各品牌授权入口
func (h *Handler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":     "carwatch",
		"login":    h.loginLinks(),
		"vehicles": "/vehicles",
	})
}

// Login 跳转到授权页
// GET /login/:brand
func (h *Handler) Login(c *gin.Context) {
	brand := models.NormalizeBrand(c.Param("brand"))
	if !h.isSupportedBrand(brand) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid brand specified. Please use one of: /login/" + strings.Join(h.opts.Brands, ", /login/"),
		})
		return
	}

	// state 携带品牌，回调时据此保存令牌
	url := h.auth.AuthURL(smartcar.DefaultScopes, brand)
	h.logger.Info("Redirecting to authorization", zap.String("brand", brand))
	c.Redirect(http.StatusFound, url)
}

// Callback 授权回调，换取令牌并保存
// GET /callback?code=...&state=<brand>
func (h *Handler) Callback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		h.logger.Warn("Authorization denied",
			zap.String("error", providerErr),
			zap.String("description", c.Query("error_description")))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization was denied: " + providerErr})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code is missing."})
		return
	}

	brand := models.NormalizeBrand(c.Query("state"))
	if brand == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "State parameter is missing."})
		return
	}
	if !h.isSupportedBrand(brand) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown brand in state parameter."})
		return
	}

	access, err := h.auth.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("Error during authorization", zap.String("brand", brand), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred during authorization."})
		return
	}

	record := models.NewTokenRecord(brand, access.AccessToken, access.RefreshToken, access.ExpiresIn, time.Now())
	if err := h.tokens.Upsert(c.Request.Context(), record); err != nil {
		h.logger.Error("Failed to save token", zap.String("brand", brand), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save authorization."})
		return
	}

	// 新品牌的车辆要在下次请求时出现
	h.vehicleService.Invalidate()

	h.logger.Info("Authorization successful", zap.String("brand", brand))
	c.JSON(http.StatusOK, gin.H{
		"message":  "Authorization successful for " + brand,
		"brand":    brand,
		"vehicles": "/vehicles",
	})
}
