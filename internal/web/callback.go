package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/database/types"
	"github.com/d3vfreak/fleet-overview/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CookieUser holds the escaped character name.
	CookieUser = "user"
	// CookieHash holds the session hash checked on every login.
	CookieHash = "hash"

	cookieMaxAge = 365 * 24 * 60 * 60
	hashBytes    = 20
	loginFailed  = "login failed"
)

// handleCallback completes the SSO login: it stores the refresh token and a
// fresh session hash, sets the login cookies and sends the browser home.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()

	code := query.Get("code")
	if code == "" {
		_, _ = w.Write([]byte(loginFailed))
		return
	}

	if !s.esi.ValidState(query.Get("state")) {
		s.logger.Warn("Rejected callback with unexpected state")
		http.Error(w, loginFailed, http.StatusBadRequest)
		return
	}

	auth, err := s.esi.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Warn("Failed to exchange authorization code", zap.Error(err))
		http.Error(w, loginFailed, http.StatusUnauthorized)
		return
	}

	if auth.RefreshToken() == "" {
		s.logger.Warn("SSO returned no refresh token")
		http.Error(w, loginFailed, http.StatusUnauthorized)
		return
	}

	character, err := auth.Verify(ctx)
	if err != nil {
		s.logger.Warn("Failed to verify access token", zap.Error(err))
		http.Error(w, loginFailed, http.StatusBadGateway)
		return
	}

	hash, err := utils.RandomHex(hashBytes)
	if err != nil {
		s.logger.Error("Failed to generate session hash", zap.Error(err))
		http.Error(w, loginFailed, http.StatusInternalServerError)
		return
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(hash), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash session", zap.Error(err))
		http.Error(w, loginFailed, http.StatusInternalServerError)
		return
	}

	_, err = s.users.GetUser(ctx, character.CharacterName)
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		info, err := s.esi.PublicInfo(ctx, character.CharacterID)
		if err != nil {
			s.logger.Warn("Failed to fetch public info", zap.Int64("characterID", character.CharacterID), zap.Error(err))
			http.Error(w, loginFailed, http.StatusBadGateway)
			return
		}

		err = s.users.SaveUser(ctx, &types.User{
			Name:          character.CharacterName,
			CharacterID:   character.CharacterID,
			RefreshToken:  auth.RefreshToken(),
			SessionHash:   string(digest),
			AllianceID:    info.AllianceID,
			CorporationID: info.CorporationID,
		})
		if err != nil {
			s.logger.Error("Failed to save user", zap.String("user", character.CharacterName), zap.Error(err))
			http.Error(w, loginFailed, http.StatusInternalServerError)
			return
		}

		s.logger.Info("Registered new user", zap.String("user", character.CharacterName))

	case err != nil:
		s.logger.Error("Failed to load user", zap.String("user", character.CharacterName), zap.Error(err))
		http.Error(w, loginFailed, http.StatusInternalServerError)
		return

	default:
		if err := s.users.UpdateCredentials(ctx, character.CharacterName, auth.RefreshToken(), string(digest)); err != nil {
			s.logger.Error("Failed to update user", zap.String("user", character.CharacterName), zap.Error(err))
			http.Error(w, loginFailed, http.StatusInternalServerError)
			return
		}

		s.logger.Info("User logged in again", zap.String("user", character.CharacterName))
	}

	setCookie(w, CookieUser, url.PathEscape(character.CharacterName))
	setCookie(w, CookieHash, hash)

	http.Redirect(w, r, s.domain, http.StatusFound)
}

func setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		SameSite: http.SameSiteStrictMode,
	})
}
