package middleware

import (
	"strings"

	"ridepool/internal/models"
	"ridepool/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthRequired validates the bearer token and sets user context
func AuthRequired(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secretKey)
		if err != nil {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("role", models.UserRole(claims.Role))

		c.Next()
	}
}

// DriverRequired allows only drivers and admins through
func DriverRequired() gin.HandlerFunc {
	return roleRequired(models.UserRoleDriver, models.UserRoleAdmin)
}

// AdminRequired allows only admins through
func AdminRequired() gin.HandlerFunc {
	return roleRequired(models.UserRoleAdmin)
}

func roleRequired(allowed ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		userRole, ok := role.(models.UserRole)
		if !ok {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		for _, a := range allowed {
			if userRole == a {
				c.Next()
				return
			}
		}

		utils.ForbiddenResponse(c)
		c.Abort()
	}
}

// CurrentUserID reads the authenticated user's id from context.
func CurrentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return primitive.NilObjectID, false
	}
	id, ok := v.(primitive.ObjectID)
	return id, ok
}

// CurrentUserRole reads the authenticated user's role from context.
func CurrentUserRole(c *gin.Context) models.UserRole {
	v, exists := c.Get("role")
	if !exists {
		return ""
	}
	role, _ := v.(models.UserRole)
	return role
}
