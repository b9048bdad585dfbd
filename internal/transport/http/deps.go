package http

import (
	"time"

	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/infrastructure/dynamo"
	jwtinfra "github.com/quote-api-nosql/internal/infrastructure/jwt"
	s3infra "github.com/quote-api-nosql/internal/infrastructure/s3"
	"github.com/quote-api-nosql/internal/infrastructure/sns"
	"github.com/quote-api-nosql/internal/notify"
)

// Deps holds everything the router needs to assemble the services and
// handlers. SMSSender, JWTProvider and AlertManager may be nil; the affected
// surface degrades instead of failing startup.
type Deps struct {
	QuoteRepo        *dynamo.QuoteRepo
	NotificationRepo *dynamo.NotificationRepo
	UserRepo         *dynamo.UserRepo
	SessionRepo      *dynamo.SessionRepo
	S3Store          *s3infra.Store
	SMSSender        sns.SMSSender
	StaffAlertPhone  string
	JWTProvider      *jwtinfra.Provider
	AlertManager     *notify.Manager
	RefreshExpiry    time.Duration
	Log              *zap.Logger
}
