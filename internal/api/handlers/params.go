package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

type tradeParams struct {
	TradeID string `params:"tradeId" validate:"required,max=128,printascii"`
}

type versionParams struct {
	TradeID string `params:"tradeId" validate:"required,max=128,printascii"`
	Version int    `params:"version" validate:"gte=1"`
}

type typeParams struct {
	Type string `params:"type" validate:"required,max=64"`
}

// bindParams parses and validates route parameters. On failure it has
// already written a 400 response.
func bindParams(c *fiber.Ctx, out any) (bool, error) {
	if err := c.ParamsParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid path parameters",
		})
	}
	if err := validate.Struct(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return true, nil
}
