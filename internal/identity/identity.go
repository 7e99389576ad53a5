// Package identity derives the local actor from the bearer token the
// marketplace hands to the chat client. The token is decoded, never
// validated; signature checks belong to the server.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt"
	"github.com/tradeguard/chatsync/internal/types"
)

const (
	userIdClaim   = "user-id"
	usernameClaim = "username"
	roleClaim     = "role"
)

func LocalUser(token string) (types.User, error) {
	parser := &jwt.Parser{}
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return types.User{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return types.User{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		// some token issuers use the registered subject claim instead
		userId, ok = claims["sub"].(string)
		if !ok || userId == "" {
			return types.User{}, fmt.Errorf("invalid user id claim")
		}
	}

	user := types.User{Id: userId}
	if username, ok := claims[usernameClaim].(string); ok {
		user.DisplayName = username
	}
	if role, ok := claims[roleClaim].(string); ok {
		user.Role = types.Role(role)
	}

	return user, nil
}
