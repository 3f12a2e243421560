// Package assetserve is the access-controlled asset fetch endpoint.
// Every request must present a signed token scoped to the asset's
// owning ticket; the URL alone grants nothing.
package assetserve

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailroom/internal/assets"
	"mailroom/internal/logger"
	"mailroom/internal/signing"
	"mailroom/pkg/errors"
	"mailroom/pkg/metrics"
	"mailroom/pkg/models"
)

type AssetLookup interface {
	GetAssetByID(ctx context.Context, id string) (*models.MessageAsset, error)
}

type Handler struct {
	lookup AssetLookup
	store  assets.Store
	signer *signing.Signer
	logger logger.Logger
}

func NewHandler(lookup AssetLookup, store assets.Store, signer *signing.Signer, log logger.Logger) *Handler {
	return &Handler{
		lookup: lookup,
		store:  store,
		signer: signer,
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/assets/:id", h.ServeAsset)
	}
}

// ServeAsset verifies the token, checks it actually covers this asset,
// ticket and variant, then streams the stored bytes.
func (h *Handler) ServeAsset(c *gin.Context) {
	assetID := c.Param("id")
	token := c.Query("token")

	claims := h.signer.ParseToken(token)
	if claims == nil {
		metrics.TokenVerifyFailuresTotal.WithLabelValues("invalid_or_expired").Inc()
		metrics.AssetServeRequestsTotal.WithLabelValues("unauthorized").Inc()
		c.JSON(http.StatusUnauthorized, errors.ToErrorResponse(errors.ErrUnauthorized))
		return
	}

	if claims.AssetID != assetID {
		metrics.TokenVerifyFailuresTotal.WithLabelValues("asset_mismatch").Inc()
		metrics.AssetServeRequestsTotal.WithLabelValues("forbidden").Inc()
		c.JSON(http.StatusForbidden, errors.ToErrorResponse(errors.ErrForbidden))
		return
	}

	asset, err := h.lookup.GetAssetByID(c.Request.Context(), assetID)
	if err != nil {
		if errors.IsNotFound(err) {
			metrics.AssetServeRequestsTotal.WithLabelValues("not_found").Inc()
			c.JSON(http.StatusNotFound, errors.ToErrorResponse(err))
			return
		}
		metrics.AssetServeRequestsTotal.WithLabelValues("error").Inc()
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to load asset", "asset_id", assetID, "error", err)
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(err))
		return
	}

	if claims.Audience != asset.TicketID {
		metrics.TokenVerifyFailuresTotal.WithLabelValues("audience_mismatch").Inc()
		metrics.AssetServeRequestsTotal.WithLabelValues("forbidden").Inc()
		c.JSON(http.StatusForbidden, errors.ToErrorResponse(errors.ErrForbidden))
		return
	}
	if claims.Variant != asset.Variant {
		metrics.TokenVerifyFailuresTotal.WithLabelValues("variant_mismatch").Inc()
		metrics.AssetServeRequestsTotal.WithLabelValues("forbidden").Inc()
		c.JSON(http.StatusForbidden, errors.ToErrorResponse(errors.ErrForbidden))
		return
	}

	data, err := h.store.Get(c.Request.Context(), asset.StorageKey)
	if err != nil {
		metrics.AssetServeRequestsTotal.WithLabelValues("error").Inc()
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to read asset from store",
			"asset_id", assetID,
			"storage_key", asset.StorageKey,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(errors.ErrInternal.WithCause(err)))
		return
	}

	metrics.AssetServeRequestsTotal.WithLabelValues("success").Inc()
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, asset.MIME, data)
}
