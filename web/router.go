package web

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/relay"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/kataras/iris/v12"
)

// Deps carries everything the HTTP surface needs. The relay context is
// the server lifetime: cancelling it closes every live session.
type Deps struct {
	Log        *slog.Logger
	RelayCtx   context.Context
	Auth       services.IAuthService
	Chat       services.IChatService
	Admin      services.IAdminService
	Users      repositories.IUserRepository
	Presence   repositories.IPresenceRepository
	Registry   *relay.Registry
	Monitoring *observability.MonitoringManager

	ConnectionBufferSize int
	ReadTimeout          time.Duration
	PingInterval         time.Duration
	WriteTimeout         time.Duration
}

// RegisterRoutes wires the JSON API and the websocket relay endpoint.
func RegisterRoutes(app *iris.Application, d Deps) {
	app.Get("/", func(ctx iris.Context) {
		ctx.JSON(iris.Map{
			"message": "Welcome to Chat Relay API",
			"version": "1.0.0",
		})
	})

	api := app.Party("/api")

	api.Post("/login", func(ctx iris.Context) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"detail": err.Error()})
			return
		}
		result, err := d.Auth.Login(req.Email, req.Password)
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(iris.Map{
			"access_token": result.Token,
			"token_type":   "bearer",
			"user":         d.userPayload(result.User),
		})
	})

	api.Post("/users/create", func(ctx iris.Context) {
		var req struct {
			Email    string `json:"email"`
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"detail": err.Error()})
			return
		}
		id, err := d.Auth.Register(req.Email, req.Username, req.Password, domain.RoleCustomer)
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"_id": id, "email": req.Email})
	})

	// Endpoints below require a valid token.
	authAPI := api.Party("/", jwtMiddleware)

	authAPI.Get("/users/me", func(ctx iris.Context) {
		userID := ctx.Values().GetString("user_id")
		view, err := d.Admin.GetUser(userID)
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(view)
	})

	authAPI.Get("/users", func(ctx iris.Context) {
		views, err := d.Admin.ListUsers("")
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(views)
	})

	authAPI.Post("/users/change-password", func(ctx iris.Context) {
		var req struct {
			NewPassword string `json:"new_password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"detail": err.Error()})
			return
		}
		userID := ctx.Values().GetString("user_id")
		if err := d.Auth.ChangePassword(userID, req.NewPassword); err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"status": "success"})
	})

	// HTTP send path: persists and best-effort dispatches like a relay
	// frame, for clients without a live socket. The sender is always
	// the authenticated caller.
	authAPI.Post("/messages/send", func(ctx iris.Context) {
		var req struct {
			ReceiverID string `json:"receiver_id"`
			Content    string `json:"content"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"detail": err.Error()})
			return
		}
		if req.ReceiverID == "" || req.Content == "" {
			ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"detail": "missing receiver_id or content"})
			return
		}
		message, outcome, err := d.Chat.Send(domain.MessageDraft{
			SenderID:   ctx.Values().GetString("user_id"),
			ReceiverID: req.ReceiverID,
			Content:    req.Content,
		})
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		payload := toMessagePayload(message)
		payload["delivery"] = outcome.String()
		ctx.JSON(payload)
	})

	authAPI.Get("/messages/{user_id}", func(ctx iris.Context) {
		userID := ctx.Params().Get("user_id")
		messages, err := d.Chat.History(userID)
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(toMessagePayloads(messages))
	})

	authAPI.Post("/messages/read", func(ctx iris.Context) {
		var req struct {
			SenderID   string `json:"sender_id"`
			ReceiverID string `json:"receiver_id"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"detail": err.Error()})
			return
		}
		updated, err := d.Chat.MarkRead(req.SenderID, req.ReceiverID)
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"status": "success", "updated": updated})
	})

	// Admin-only endpoints.
	adminAPI := authAPI.Party("/admin", func(ctx iris.Context) {
		if ctx.Values().GetString("role") != domain.RoleAdmin {
			ctx.StopWithJSON(iris.StatusForbidden, iris.Map{"detail": errors.ErrAdminRequired.Error()})
			return
		}
		ctx.Next()
	})

	adminAPI.Post("/create", func(ctx iris.Context) {
		var req struct {
			Email    string `json:"email"`
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"detail": err.Error()})
			return
		}
		id, err := d.Auth.Register(req.Email, req.Username, req.Password, req.Role)
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"_id": id, "email": req.Email, "username": req.Username})
	})

	adminAPI.Get("/users", func(ctx iris.Context) {
		views, err := d.Admin.ListUsers(domain.RoleCustomer)
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(views)
	})

	adminAPI.Get("/stats", func(ctx iris.Context) {
		stats, err := d.Admin.Stats()
		if err != nil {
			ctx.StopWithJSON(errors.MapToHTTPStatus(err), iris.Map{"detail": err.Error()})
			return
		}
		ctx.JSON(stats)
	})

	// The relay endpoint authenticates inside the handler so it can
	// also accept the token as a query parameter (browser WebSocket
	// clients cannot set headers).
	app.Get("/ws/chat", wsHandler(d))
}

// jwtMiddleware resolves the caller's identity and stores it in the
// request values for downstream handlers.
func jwtMiddleware(ctx iris.Context) {
	token := bearerToken(ctx)
	if token == "" {
		ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"detail": "missing token"})
		return
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"detail": "invalid token"})
		return
	}
	ctx.Values().Set("user_id", claims.UserID)
	ctx.Values().Set("role", claims.Role)
	ctx.Next()
}

func bearerToken(ctx iris.Context) string {
	header := ctx.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return header
}

func (d Deps) userPayload(user domain.User) iris.Map {
	payload := iris.Map{
		"id":           user.ID,
		"email":        user.Email,
		"username":     user.Username,
		"role":         user.Role,
		"isFirstLogin": user.IsFirstLogin,
		"created_at":   user.CreatedAt,
		"last_seen":    nil,
		"is_online":    false,
	}
	if presence, err := d.Presence.Get(user.ID); err == nil {
		payload["last_seen"] = presence.LastSeen
		payload["is_online"] = presence.IsOnline
	}
	return payload
}

func toMessagePayload(message domain.Message) iris.Map {
	return iris.Map{
		"_id":         message.ID.String(),
		"sender_id":   message.SenderID,
		"receiver_id": message.ReceiverID,
		"content":     message.Content,
		"timestamp":   message.CreatedAt,
		"status":      message.Status,
		"is_read":     message.Status == domain.StatusRead,
		"read_at":     message.ReadAt,
	}
}

func toMessagePayloads(messages []domain.Message) []iris.Map {
	payloads := make([]iris.Map, 0, len(messages))
	for _, message := range messages {
		payloads = append(payloads, toMessagePayload(message))
	}
	return payloads
}
