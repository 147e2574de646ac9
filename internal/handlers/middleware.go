package handlers

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/core/errors"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/ratelimit"
)

// UpdateContext содержит контекст обработки обновления
type UpdateContext struct {
	Context   context.Context
	Update    *tgbotapi.Update
	UserID    int64
	ChatID    int64
	Username  string
	StartTime time.Time
}

// MiddlewareFunc представляет функцию middleware
type MiddlewareFunc func(*UpdateContext) error

// Chain представляет цепочку middleware
type Chain struct {
	middlewares []MiddlewareFunc
}

// NewChain создает новую цепочку middleware
func NewChain(middlewares ...MiddlewareFunc) *Chain {
	return &Chain{
		middlewares: middlewares,
	}
}

// Use добавляет middleware в цепочку
func (c *Chain) Use(middleware MiddlewareFunc) *Chain {
	c.middlewares = append(c.middlewares, middleware)
	return c
}

// Execute выполняет цепочку до первой ошибки
func (c *Chain) Execute(ctx *UpdateContext) error {
	for _, middleware := range c.middlewares {
		if err := middleware(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ValidationMiddleware отбрасывает обновления без отправителя
func ValidationMiddleware(ctx *UpdateContext) error {
	u := ctx.Update
	switch {
	case u == nil:
		return errors.NewDomainError(errors.ErrorTypeValidation, "nil_update", "update is nil")
	case u.Message != nil && u.Message.From == nil:
		return errors.NewDomainError(errors.ErrorTypeValidation, "no_sender", "message has no sender")
	case u.CallbackQuery != nil && (u.CallbackQuery.From == nil || u.CallbackQuery.Message == nil):
		return errors.NewDomainError(errors.ErrorTypeValidation, "no_sender", "callback has no sender or message")
	case u.Message == nil && u.CallbackQuery == nil:
		return errors.NewDomainError(errors.ErrorTypeValidation, "unsupported_update", "update type is not handled")
	}
	return nil
}

// LoggingMiddleware логирует входящие обновления и заполняет идентификаторы
func LoggingMiddleware(ctx *UpdateContext) error {
	ctx.StartTime = time.Now()

	if msg := ctx.Update.Message; msg != nil {
		logutils.Log.WithFields(map[string]any{
			"user_id":  msg.From.ID,
			"username": msg.From.UserName,
			"chat_id":  msg.Chat.ID,
			"text":     truncate(msg.Text, 200),
		}).Info("Received message")

		ctx.UserID = msg.From.ID
		ctx.ChatID = msg.Chat.ID
		ctx.Username = msg.From.UserName
	} else if cq := ctx.Update.CallbackQuery; cq != nil {
		logutils.Log.WithFields(map[string]any{
			"user_id":       cq.From.ID,
			"username":      cq.From.UserName,
			"callback_data": cq.Data,
		}).Info("Received callback query")

		ctx.UserID = cq.From.ID
		ctx.ChatID = cq.Message.Chat.ID
		ctx.Username = cq.From.UserName
	}
	return nil
}

// AuthMiddleware пропускает только владельца бота
func AuthMiddleware(ownerID int64) MiddlewareFunc {
	return func(ctx *UpdateContext) error {
		if ctx.UserID != ownerID {
			logutils.Log.WithFields(map[string]any{
				"user_id":  ctx.UserID,
				"username": ctx.Username,
			}).Warn("Access denied")
			return errors.ErrUnauthorized
		}
		return nil
	}
}

// RateLimitMiddleware ограничивает частоту запросов
func RateLimitMiddleware(limiter ratelimit.Limiter) MiddlewareFunc {
	return func(ctx *UpdateContext) error {
		if limiter == nil {
			return nil
		}
		if !limiter.Allow(ctx.UserID) {
			logutils.Log.WithField("user_id", ctx.UserID).Warn("Rate limit exceeded")
			return errors.NewDomainError(errors.ErrorTypeValidation, "rate_limit_exceeded", "rate limit exceeded").
				WithUserMessage("Too many requests, slow down a little.")
		}
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
