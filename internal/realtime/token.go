package realtime

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Claims identify the agent to the cloud hub.
type Claims struct {
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id"`
	jwt.RegisteredClaims
}

// Signer mints the connect-time bearer token from tenant/agent identity.
type Signer struct {
	Secret []byte
	Issuer string
	ExpMin int
}

func (s *Signer) Sign(tenantID, agentID string) (string, error) {
	now := time.Now()
	exp := now.Add(time.Duration(s.ExpMin) * time.Minute)
	claims := Claims{
		TenantID: tenantID, AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: s.Issuer, Subject: agentID, IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(exp)},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) { return s.Secret, nil })
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
