package auth

import (
	"context"
	"errors"
	"fmt"

	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"campusattend/internal/user"
)

// Google drives the OAuth authorization-code flow against Google and
// verifies the returned id_token.
type Google struct {
	cfg      *oauth2.Config
	verifier *googleAuthIDTokenVerifier.Verifier
}

// NewGoogle builds the flow from the configured client credentials.
func NewGoogle(clientID, clientSecret, callbackURL string) *Google {
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		verifier: &googleAuthIDTokenVerifier.Verifier{},
	}
}

// AuthURL returns the Google consent URL for a state token.
func (g *Google) AuthURL(state string) string {
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the callback code for tokens, verifies the id_token
// signature and audience, and returns the profile the app stores.
func (g *Google) Exchange(ctx context.Context, code string) (user.GoogleProfile, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return user.GoogleProfile{}, fmt.Errorf("google code exchange: %w", err)
	}

	idToken, ok := tok.Extra("id_token").(string)
	if !ok || idToken == "" {
		return user.GoogleProfile{}, errors.New("google response missing id_token")
	}

	if err := g.verifier.VerifyIDToken(idToken, []string{g.cfg.ClientID}); err != nil {
		return user.GoogleProfile{}, fmt.Errorf("verify id_token: %w", err)
	}

	claims, err := googleAuthIDTokenVerifier.Decode(idToken)
	if err != nil {
		return user.GoogleProfile{}, fmt.Errorf("decode id_token: %w", err)
	}
	if claims.Email == "" || claims.Sub == "" {
		return user.GoogleProfile{}, errors.New("id_token missing identity claims")
	}

	locale := claims.Locale
	if locale == "" {
		locale = "zh-TW"
	}
	return user.GoogleProfile{
		GoogleID:      claims.Sub,
		Email:         claims.Email,
		Name:          claims.Name,
		AvatarURL:     claims.Picture,
		Locale:        locale,
		VerifiedEmail: claims.EmailVerified,
	}, nil
}
