package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
)

func campaignIDParam(c fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// queryInt returns def when the parameter is absent; ok is false when it is malformed
func queryInt(c fiber.Ctx, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
