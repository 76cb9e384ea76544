package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/pkg/utils"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 12)
	id := uuid.New()

	token, err := svc.Generate(id, "scanner", string(models.RoleStaff))
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.StaffID)
	assert.Equal(t, "scanner", claims.Username)
	assert.Equal(t, "staff", claims.Role)

	_, err = NewJWTService("different", 12).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDirectories(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, NewStaticDirectory("", "hash"))

	static := NewStaticDirectory("Desk", "hash")
	s, err := static.GetByUsername(ctx, "desk")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, s.Role)

	again, err := static.GetByUsername(ctx, "DESK")
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)

	_, err = static.GetByUsername(ctx, "other")
	assert.ErrorIs(t, err, ErrStaffNotFound)

	var none *StaticDirectory
	chain := Chain{none, static}
	_, err = chain.GetByUsername(ctx, "desk")
	assert.NoError(t, err)
	_, err = Chain{}.GetByUsername(ctx, "desk")
	assert.ErrorIs(t, err, ErrStaffNotFound)
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := utils.HashPassword("correct horse")
	require.NoError(t, err)
	jwtSvc := NewJWTService("secret", 12)
	h := NewHandler(NewStaticDirectory("desk", hash), jwtSvc, nil)
	r := gin.New()
	r.POST("/auth/login", h.Login)

	login := func(username, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
		req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := login("desk", "correct horse")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	claims, err := jwtSvc.Validate(out.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "desk", claims.Username)

	assert.Equal(t, http.StatusUnauthorized, login("desk", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, login("nobody", "correct horse").Code)
	assert.Equal(t, http.StatusBadRequest, login("", "").Code)
}
