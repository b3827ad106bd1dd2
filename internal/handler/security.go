package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/fault"
)

// Claims are the JWT claims identifying an actor. The subject is the
// numeric user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role         auth.Role `json:"role"`
	RestaurantID int64     `json:"restaurant_id,omitempty"`
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator for tokens signed with secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret, now: time.Now}
}

// Issue signs a token for the actor that expires after ttl.
func (a *Authenticator) Issue(actor auth.Actor, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:         actor.Role,
		RestaurantID: actor.RestaurantID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify parses a signed token and returns the actor it names.
func (a *Authenticator) Verify(raw string) (auth.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return auth.Actor{}, errors.Wrap(err, "parse token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return auth.Actor{}, errors.Errorf("invalid subject %q", claims.Subject)
	}
	if !claims.Role.Valid() {
		return auth.Actor{}, errors.Errorf("invalid role %q", claims.Role)
	}
	if claims.Role == auth.RoleRestaurant && claims.RestaurantID <= 0 {
		return auth.Actor{}, errors.New("restaurant token without restaurant_id")
	}

	return auth.Actor{
		UserID:       userID,
		Role:         claims.Role,
		RestaurantID: claims.RestaurantID,
	}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// authenticated actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeStatus(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		actor, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected token", zap.Error(err))
			writeStatus(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		ctx := auth.WithActor(r.Context(), actor)
		ctx = zctx.With(ctx,
			zap.Int64("actor_id", actor.UserID),
			zap.String("actor_role", string(actor.Role)),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the authenticated actor of the request.
func actorFrom(r *http.Request) (auth.Actor, error) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Actor{}, errors.Wrap(fault.ErrUnauthorized, "no authenticated actor")
	}
	return actor, nil
}
