// Package statetoken emite y valida los state tokens del connect flow OAuth.
// Son JWT HS256 de vida corta: atan el callback al usuario y provider que
// iniciaron el flujo sin estado en servidor.
package statetoken

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalid = errors.New("statetoken: invalid token")
	ErrExpired = errors.New("statetoken: expired token")
)

// Claims identifica el flujo de conexión en curso.
type Claims struct {
	UserID   string
	Provider string
}

// Issuer firma y valida state tokens con un secreto compartido.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New crea un Issuer. ttl acota la ventana entre redirect y callback.
func New(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue genera el state para iniciar el flujo de un usuario/provider.
func (i *Issuer) Issue(userID, provider string) (string, error) {
	now := i.now()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub": userID,
		"prv": provider,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	})
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("statetoken: sign: %w", err)
	}
	return signed, nil
}

// Validate verifica firma y vigencia y devuelve los claims del flujo.
func (i *Issuer) Validate(state string) (Claims, error) {
	tok, err := jwtv5.Parse(state, func(*jwtv5.Token) (any, error) {
		return i.secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok || !tok.Valid {
		return Claims{}, ErrInvalid
	}
	sub, _ := mc["sub"].(string)
	prv, _ := mc["prv"].(string)
	if sub == "" || prv == "" {
		return Claims{}, ErrInvalid
	}
	return Claims{UserID: sub, Provider: prv}, nil
}
