package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("coaching", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("stu-1", "a@b.c", RoleStudent)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := iss.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.Subject)
	assert.Equal(t, RoleStudent, claims.Role)
	assert.Equal(t, kindAccess, claims.Kind)

	_, err = NewIssuer("coaching", "other", time.Minute, time.Hour).Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewIssuer("elsewhere", "secret", time.Minute, time.Hour).Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrIssuerMismatch)
}

func TestExpiredToken(t *testing.T) {
	iss := NewIssuer("coaching", "secret", time.Minute, time.Hour)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	pair, err := iss.Issue("stu-1", "", RoleStudent)
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh(t *testing.T) {
	iss := NewIssuer("coaching", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("t-1", "t@x.io", RoleTeacher)
	require.NoError(t, err)

	_, err = iss.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrNotRefresh)

	next, err := iss.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := iss.Parse(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, claims.Role)
	assert.Equal(t, "t@x.io", claims.Email)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)
	assert.NoError(t, CheckPassword(hash, "s3cret!"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("coaching", "secret", time.Minute, time.Hour)
	r := gin.New()
	r.GET("/admin", Authenticate(iss), RequireRole(RoleAdmin), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})

	admin, err := iss.Issue("adm", "", RoleAdmin)
	require.NoError(t, err)
	student, err := iss.Issue("stu", "", RoleStudent)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"refresh token", "Bearer " + admin.RefreshToken, "", http.StatusUnauthorized},
		{"wrong role", "Bearer " + student.AccessToken, "", http.StatusForbidden},
		{"admin", "Bearer " + admin.AccessToken, "", http.StatusOK},
		{"lowercase scheme", "bearer " + admin.AccessToken, "", http.StatusOK},
		{"query token", "", "?access_token=" + admin.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
