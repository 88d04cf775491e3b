package redirect

import (
	"context"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/tasks"
	"codeberg.org/tinyurl/server/tinyurl/clicks"
	"codeberg.org/tinyurl/server/tinyurl/urls"
)

type URLFinder interface {
	FindByCode(ctx context.Context, code string) (*urls.URL, error)
}

type OwnershipChecker interface {
	Require(ctx context.Context, urlID, userID int64) error
}

type ClickPublisher interface {
	Publish(ctx context.Context, m clicks.Message) error
}

type TaskQueue interface {
	Submit(name string, fn tasks.Task) error
}

type Deps struct {
	URLs      URLFinder
	Ownership OwnershipChecker
	Clicks    ClickPublisher
	Tasks     TaskQueue

	// applied before the redirect handler when set
	RateLimit gin.HandlerFunc
}

// headers set by the CDN in front of the service
const (
	headerCountry = "CF-IPCountry"
	headerCity    = "CF-IPCity"
	headerRegion  = "CF-Region"
)
