package controllers

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yashrajoria/graphql-gateway/backends"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/logger"
	"github.com/yashrajoria/graphql-gateway/routes"
)

// TokenPageTemplate is the name of the template the token pages render.
const TokenPageTemplate = "token_page"

const tokenPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
</head>
<body>
<h1>{{ .Title }}</h1>
<p>{{ .Message }}</p>
</body>
</html>`

// Templates returns the HTML templates to install with gin's SetHTMLTemplate.
func Templates() *template.Template {
	return template.Must(template.New(TokenPageTemplate).Parse(tokenPage))
}

// TokenApplier forwards one-time link tokens to the users backend.
type TokenApplier interface {
	ApplyToken(ctx context.Context, action backends.TokenAction, token string) error
}

type pageText struct {
	action           backends.TokenAction
	title            string
	success, failure string
}

var tokenPages = map[routes.Kind]pageText{
	routes.VerifyEmail: {
		action:  backends.VerifyEmail,
		title:   "Email verification",
		success: "Your email address has been verified.",
		failure: "This verification link is invalid or has expired.",
	},
	routes.ResetPassword: {
		action:  backends.ResetPassword,
		title:   "Password reset",
		success: "Your password has been reset. Check your inbox for the new one.",
		failure: "This password reset link is invalid or has expired.",
	},
	routes.AddDevice: {
		action:  backends.AddDevice,
		title:   "New device",
		success: "The new device has been confirmed. You can sign in from it now.",
		failure: "This device confirmation link is invalid or has expired.",
	},
}

// PagesController serves every non-GraphQL route.
type PagesController struct {
	tokens TokenApplier
	log    *zap.Logger
}

func NewPagesController(tokens TokenApplier, log *zap.Logger) *PagesController {
	if log == nil {
		log = zap.NewNop()
	}
	return &PagesController{tokens: tokens, log: log}
}

func (pc *PagesController) Healthcheck(c *gin.Context, _ routes.Route) {
	c.String(http.StatusOK, "Ok")
}

// Playground serves the GraphQL IDE pointed at endpoint.
func Playground(endpoint string) routes.Handler {
	h := playground.Handler("GraphQL playground", endpoint)
	return func(c *gin.Context, _ routes.Route) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// TokenPage applies the token of a one-time link and renders the outcome.
func (pc *PagesController) TokenPage(c *gin.Context, route routes.Route) {
	text, ok := tokenPages[route.Kind]
	if !ok {
		apperrors.Abort(c, apperrors.NotFound("no page for "+route.Kind.String()))
		return
	}

	err := pc.tokens.ApplyToken(c.Request.Context(), text.action, route.Token)
	if err == nil {
		c.HTML(http.StatusOK, TokenPageTemplate, gin.H{"Title": text.title, "Message": text.success})
		return
	}

	status := failureStatus(err)
	fields := []zap.Field{
		zap.String("page", route.Kind.String()),
		zap.String(logger.CorrelationKey, logger.Correlation(c)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		pc.log.Error("Failed to apply link token", fields...)
	} else {
		pc.log.Debug("Link token rejected", fields...)
	}
	c.HTML(status, TokenPageTemplate, gin.H{"Title": text.title, "Message": text.failure})
}

// failureStatus maps a rejected token onto 400 and keeps the gateway status
// for every other failure.
func failureStatus(err error) int {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	if appErr.Kind == apperrors.KindApi && appErr.Status >= 400 && appErr.Status < 500 {
		return http.StatusBadRequest
	}
	return appErr.HTTPStatus()
}
