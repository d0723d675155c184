package repository

import (
	"context"
	"time"
)

// ProviderCredential representa el estado OAuth de un usuario en un provider.
// Solo las operaciones authorize/refresh del provider mutan estos valores;
// la persistencia es responsabilidad del caller (nunca del adapter).
type ProviderCredential struct {
	UserID            string
	Provider          string // "strava", "fitbit", "garmin"
	AccessToken       string
	AccessTokenSecret string // vacío para providers OAuth2
	RefreshToken      string
	Expiry            time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Expired reporta si el access token ya venció (con un margen de seguridad).
func (c ProviderCredential) Expired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false // providers sin expiry (token+secret estilo OAuth1)
	}
	return !now.Add(30 * time.Second).Before(c.Expiry)
}

// CredentialRepository define operaciones sobre credenciales de providers.
type CredentialRepository interface {
	// Get busca la credencial de un usuario para un provider.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, userID, provider string) (*ProviderCredential, error)

	// Upsert crea o reemplaza la credencial (clave: userID+provider).
	Upsert(ctx context.Context, cred ProviderCredential) error

	// ListByProvider lista las credenciales activas de un provider.
	// Usado por el sync sweep periódico.
	ListByProvider(ctx context.Context, provider string) ([]ProviderCredential, error)

	// Delete elimina la credencial (desconexión del provider).
	Delete(ctx context.Context, userID, provider string) error
}
