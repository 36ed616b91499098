package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/mapvivid/cityroute/pkg/response"
)

// TasksTokenHeader carries the shared secret on internal task deliveries.
const TasksTokenHeader = "X-Tasks-Token"

type TasksAuthMiddleware struct {
	token string
}

func NewTasksAuthMiddleware(token string) *TasksAuthMiddleware {
	return &TasksAuthMiddleware{token: token}
}

// Authenticate rejects any delivery whose shared-secret header does not
// match the configured value. An empty configured token rejects all
// deliveries rather than letting everything through.
func (m *TasksAuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(TasksTokenHeader)
		if m.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(m.token)) != 1 {
			return response.Forbidden(c, "Forbidden")
		}
		return c.Next()
	}
}
