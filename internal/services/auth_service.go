package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/authorizerdev/authorizer-go"
	"github.com/localnerve/formentries/internal/config"
	"github.com/localnerve/formentries/internal/utils"
	"github.com/rs/zerolog/log"
)

var (
	authMu       sync.Mutex
	authClient   *authorizer.AuthorizerClient
	authCfg      *config.Config
	authRedirect string
)

// IsAuthorizerInitialized returns true if the Authorizer client is initialized
func IsAuthorizerInitialized() bool {
	authMu.Lock()
	defer authMu.Unlock()
	return authClient != nil
}

// InitAuthorizer initializes the Authorizer client. When the service is not
// reachable yet the settings are kept and session validation retries.
func InitAuthorizer(cfg *config.Config, redirectURL string) error {
	authMu.Lock()
	defer authMu.Unlock()

	authCfg, authRedirect = cfg, redirectURL
	return initAuthorizerLocked()
}

func initAuthorizerLocked() error {
	if authClient != nil {
		return nil
	}
	if authCfg == nil {
		return fmt.Errorf("authorizer not configured")
	}

	// Ping the Authorizer service first
	if err := utils.PingAuthorizer(context.Background(), authCfg.AuthzURL); err != nil {
		return fmt.Errorf("authorizer ping failed: %w", err)
	}

	log.Info().
		Str("authorizerURL", authCfg.AuthzURL).
		Str("clientID", authCfg.AuthzClientID).
		Str("redirectURL", authRedirect).
		Msg("initializing authorizer")

	client, err := authorizer.NewAuthorizerClient(authCfg.AuthzClientID, authCfg.AuthzURL, authRedirect, nil)
	if err != nil {
		return fmt.Errorf("failed to create authorizer client: %w", err)
	}
	authClient = client
	return nil
}

// ValidateSession validates a session cookie for the given roles and
// returns the user as map{"id": ..., "email": ...}
func ValidateSession(cookie string, roles []string) (map[string]interface{}, error) {
	authMu.Lock()
	err := initAuthorizerLocked()
	client := authClient
	authMu.Unlock()
	if err != nil {
		return nil, err
	}

	// Convert roles to []*string
	rolesPtrs := make([]*string, len(roles))
	for i := range roles {
		rolesPtrs[i] = &roles[i]
	}

	res, err := client.ValidateSession(&authorizer.ValidateSessionInput{
		Cookie: cookie,
		Roles:  rolesPtrs,
	})
	if err != nil {
		return nil, fmt.Errorf("session validation failed: %w", err)
	}

	// Check if session is valid
	if res == nil || !res.IsValid || res.User == nil {
		return nil, fmt.Errorf("session is not valid")
	}

	return map[string]interface{}{
		"id":    res.User.ID,
		"email": res.User.Email,
	}, nil
}
