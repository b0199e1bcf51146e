package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kvistad/parley/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const ctxUserKey = "parley.user"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin verifies the credentials and issues a bearer token carrying
// the user's id and role.
func (s *server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body"})
		return
	}

	var user models.User
	if err := s.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "wrong username or password"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "wrong username or password"})
		return
	}

	token, err := s.issueToken(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token,
		"user": gin.H{
			"id":          user.ID,
			"username":    user.Username,
			"displayName": user.DisplayName,
			"role":        user.Role,
		},
	})
}

func (s *server) issueToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  fmt.Sprint(user.ID),
		"role": user.Role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("server: sign token: %w", err)
	}
	return signed, nil
}

// parseToken validates a bearer token and loads the user it names.
func (s *server) parseToken(tokenStr string) (*models.User, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("server: invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("server: unexpected claims type")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("server: token missing subject")
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", sub).Error; err != nil {
		return nil, fmt.Errorf("server: token subject %s: %w", sub, err)
	}
	return &user, nil
}

// bearerToken extracts the credential from the Authorization header, or from
// the token query parameter for websocket clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// authRequired rejects requests without a valid bearer token and stashes the
// authenticated user on the request context.
func (s *server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}
		user, err := s.parseToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// agentOnly rejects authenticated users that do not hold the agent role.
func agentOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).IsAgent() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "agent role required"})
			return
		}
		c.Next()
	}
}

// currentUser returns the user installed by authRequired.
func currentUser(c *gin.Context) *models.User {
	return c.MustGet(ctxUserKey).(*models.User)
}

// userExists reports whether an account with the given id exists.
func userExists(db *gorm.DB, id uint) bool {
	var n int64
	db.Model(&models.User{}).Where("id = ?", id).Count(&n)
	return n > 0
}
