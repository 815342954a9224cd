package routes

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/logging"
	"github.com/any-hub/asset-cache/internal/server"
	"github.com/any-hub/asset-cache/internal/service"
)

// HeaderCacheHit 标记响应是否来自缓存。
const HeaderCacheHit = "X-Asset-Cache-Hit"

// RegisterAssetRoutes 暴露资产读写接口：GET /assets/:id、GET /assets/:id/data、PUT /assets/:id。
func RegisterAssetRoutes(app *fiber.App, svc *service.AssetService, logger *logrus.Logger) {
	if app == nil || svc == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/assets/:id", func(c fiber.Ctx) error {
		id, ok := assetID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "invalid_asset_id")
		}
		a, hit, err := svc.Get(c.Context(), id)
		logRequest(c, logger, "/assets/:id", id, hit, err)
		if err != nil {
			return writeFetchError(c, err)
		}
		c.Set(HeaderCacheHit, strconv.FormatBool(hit))
		return c.JSON(a)
	})

	app.Get("/assets/:id/data", func(c fiber.Ctx) error {
		id, ok := assetID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "invalid_asset_id")
		}
		data, hit, err := svc.GetData(c.Context(), id)
		logRequest(c, logger, "/assets/:id/data", id, hit, err)
		if err != nil {
			return writeFetchError(c, err)
		}
		c.Set(HeaderCacheHit, strconv.FormatBool(hit))
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.Send(data)
	})

	app.Put("/assets/:id", func(c fiber.Ctx) error {
		id, ok := assetID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "invalid_asset_id")
		}
		var a asset.Asset
		if err := json.Unmarshal(c.Body(), &a); err != nil {
			return writeError(c, fiber.StatusBadRequest, "invalid_asset_body")
		}
		a.ID = id
		err := svc.Store(c.Context(), &a)
		logRequest(c, logger, "PUT /assets/:id", id, false, err)
		if err != nil {
			return writeError(c, fiber.StatusBadGateway, "upstream_store_failed")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "size": a.Size()})
	})
}

func assetID(c fiber.Ctx) (string, bool) {
	raw := c.Params("id")
	if !asset.IsValidID(raw) {
		return "", false
	}
	return asset.NormalizeID(raw), true
}

func writeFetchError(c fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "asset_not_found")
	}
	return writeError(c, fiber.StatusBadGateway, "upstream_unavailable")
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func logRequest(c fiber.Ctx, logger *logrus.Logger, route, id string, hit bool, err error) {
	entry := logger.WithFields(logging.RequestFields(route, id, hit)).WithField("request_id", server.RequestID(c))
	switch {
	case err == nil:
		entry.Debug("asset_request")
	case errors.Is(err, service.ErrNotFound):
		entry.Debug("asset_request_not_found")
	default:
		entry.WithError(err).Warn("asset_request_failed")
	}
}
