package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
)

const (
	tokenContextKey  = "callerToken"
	callerContextKey = "caller"
	jwtAudience      = "Bursar"
)

// Claims represents the authorization claims transmitted via a JWT.
// The token is minted by the identity provider (or `admin token`); the API only trusts it.
type Claims struct {
	jwt.StandardClaims
	Name       string   `json:"name,omitempty"`
	IsAdmin    bool     `json:"is_admin,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	StudentIDs []string `json:"student_ids,omitempty"`
	// AllStudents lifts the student restriction of non-admin callers (eg. school staff).
	AllStudents bool `json:"all_students,omitempty"`
}

// NewClaims returns the claims of caller, valid for conf.Server.JWTExpirationDelta.
func NewClaims(conf *core.Config, caller finance.Caller) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   caller.ID,
			Audience:  jwtAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:        caller.Name,
		IsAdmin:     caller.IsAdmin(),
		Roles:       caller.Roles,
		StudentIDs:  caller.StudentIDs,
		AllStudents: caller.StudentIDs == nil,
	}
}

// Caller turns the claims into the finance identity.
// Admins see every student; other callers only their StudentIDs unless AllStudents is set.
func (c Claims) Caller() finance.Caller {
	caller := finance.Caller{ID: c.Subject, Name: c.Name, Roles: c.Roles}
	if c.IsAdmin || c.AllStudents {
		return caller
	}
	caller.StudentIDs = c.StudentIDs
	if caller.StudentIDs == nil {
		caller.StudentIDs = []string{}
	}
	return caller
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextCaller(ctx echo.Context) (finance.Caller, error) {
	if caller, ok := ctx.Get(callerContextKey).(finance.Caller); ok {
		return caller, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return finance.Caller{}, err
	}
	if claims.Audience != jwtAudience || claims.Subject == "" {
		return finance.Caller{}, errUnauthorized
	}
	caller := claims.Caller()
	ctx.Set(callerContextKey, caller)
	return caller, nil
}

func contextHasAnyRole(caller finance.Caller, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		for _, has := range caller.Roles {
			if role == has {
				return true
			}
		}
	}
	return false
}
