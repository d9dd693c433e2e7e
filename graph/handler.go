package graph

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/logger"
)

type params struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// Handler serves GraphQL over HTTP. Field errors are returned next to the
// data with status 200; only unreadable requests fail as a whole.
type Handler struct {
	schema   graphql.Schema
	observer ErrorObserver
	log      *zap.Logger
}

func NewHandler(schema graphql.Schema, observer ErrorObserver, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{schema: schema, observer: observer, log: log}
}

func (h *Handler) Serve(c *gin.Context) {
	p, err := readParams(c)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  p.Query,
		VariableValues: p.Variables,
		OperationName:  p.OperationName,
		Context:        c.Request.Context(),
	})

	// Field errors were counted by the resolvers; errors without extensions
	// come from parsing or validating the document.
	for _, fe := range result.Errors {
		if fe.Extensions != nil {
			continue
		}
		if h.observer != nil {
			h.observer.ObserveGraphQLError(apperrors.CodeParse)
		}
		h.log.Debug("GraphQL document rejected",
			zap.String("error", fe.Message),
			zap.String(logger.CorrelationKey, logger.Correlation(c)))
	}

	c.JSON(http.StatusOK, result)
}

func readParams(c *gin.Context) (params, error) {
	var p params
	switch c.Request.Method {
	case http.MethodGet:
		p.Query = c.Query("query")
		p.OperationName = c.Query("operationName")
		if raw := c.Query("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &p.Variables); err != nil {
				return p, apperrors.Parse("variables must be a JSON object", err)
			}
		}
	default:
		if err := c.ShouldBindJSON(&p); err != nil {
			return p, apperrors.Parse("invalid request body", err)
		}
	}
	if p.Query == "" {
		return p, apperrors.Parse("query must not be empty", nil)
	}
	return p, nil
}
