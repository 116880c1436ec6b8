package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/moyoez/multiparter/adapters"
	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/tool"
)

const (
	// FormKey is the gin context key the parsed *multiparter.Result is stored under.
	FormKey = "multiparter.form"
	// SessionIDKey holds the id of the upload session that parsed the body.
	SessionIDKey = "multiparter.session"
	// SessionHeader announces the session id so a client can cancel it.
	SessionHeader = "X-Upload-Session"
)

// Hooks observe the lifecycle of the session a Multipart middleware runs.
// Either may be nil.
type Hooks struct {
	OnStart func(c *gin.Context, sessionId string, abort func())
	OnDone  func(c *gin.Context, sessionId string, err error)
}

// Multipart parses the request body with a fresh adapter from newAdapter and
// stores the result under FormKey. On failure the error is attached to the
// context and the chain is aborted; pair it with ErrorHandler.
func Multipart[T any](newAdapter adapters.Factory[T], opts ...multiparter.Option) gin.HandlerFunc {
	return MultipartWithHooks(newAdapter, Hooks{}, opts...)
}

// MultipartWithHooks is Multipart with lifecycle hooks.
func MultipartWithHooks[T any](newAdapter adapters.Factory[T], hooks Hooks, opts ...multiparter.Option) gin.HandlerFunc {
	return func(c *gin.Context) {
		adapter, err := newAdapter()
		if err != nil {
			tool.DefaultLogger.Errorf("[Multipart] Failed to create storage adapter: %v", err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		session, err := multiparter.NewFromRequest(c.Request, adapter, opts...)
		if err != nil {
			tool.DefaultLogger.Debugf("[Multipart] Rejected request from %s: %v", c.ClientIP(), err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		id := session.ID()
		c.Header(SessionHeader, id)
		c.Set(SessionIDKey, id)
		if hooks.OnStart != nil {
			hooks.OnStart(c, id, session.Abort)
		}

		result, err := session.Run(c.Request.Context())
		if hooks.OnDone != nil {
			hooks.OnDone(c, id, err)
		}
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(FormKey, result)
		c.Next()
	}
}

// Form returns the result stored by Multipart, or nil when there is none.
func Form[T any](c *gin.Context) *multiparter.Result[T] {
	v, ok := c.Get(FormKey)
	if !ok {
		return nil
	}
	r, _ := v.(*multiparter.Result[T])
	return r
}

// SessionID returns the id of the session Multipart ran for this request.
func SessionID(c *gin.Context) string {
	return c.GetString(SessionIDKey)
}
