package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const userCacheTTL = time.Hour

// AuthRequired verifies the bearer token against the identity provider's
// /verify endpoint and stores the resolved user id in Locals("user_id").
// Verified tokens are cached in Redis (keyed by token hash) so repeat
// requests skip the collaborator round trip; the cache is best effort.
func AuthRequired(authURL string, rdb *redis.Client) fiber.Handler {
	httpClient := &http.Client{Timeout: 5 * time.Second}

	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(401).JSON(fiber.Map{"error": "missing auth"})
		}
		token := strings.TrimPrefix(header, "Bearer ")

		if userID, ok := cachedUser(c.Context(), rdb, token); ok {
			c.Locals("user_id", userID)
			c.Locals("token", token)
			return c.Next()
		}

		req, err := http.NewRequestWithContext(c.Context(), http.MethodGet, authURL+"/verify", nil)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "auth request failed"})
		}
		req.Header.Set("Authorization", header)

		resp, err := httpClient.Do(req)
		if err != nil {
			log.Println("auth verify call failed:", err)
			return c.Status(401).JSON(fiber.Map{"error": "auth failed"})
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.UserID == "" {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		cacheUser(c.Context(), rdb, token, body.UserID)

		c.Locals("user_id", body.UserID)
		c.Locals("token", token)
		return c.Next()
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "user_auth:" + hex.EncodeToString(sum[:])[:32]
}

func cachedUser(ctx context.Context, rdb *redis.Client, token string) (string, bool) {
	if rdb == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	userID, err := rdb.Get(ctx, tokenKey(token)).Result()
	if err != nil || userID == "" {
		return "", false
	}
	return userID, true
}

func cacheUser(ctx context.Context, rdb *redis.Client, token, userID string) {
	if rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := rdb.Set(ctx, tokenKey(token), userID, userCacheTTL).Err(); err != nil {
		log.Println("user auth cache write failed:", err)
	}
}
