package echoapi

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core/user"
	"github.com/lucidiacare/lucidia/testutil"
)

func Test_userApi_register(t *testing.T) {
	app := setup(t, nil)

	t.Run("patient", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/patients", "", marchallObj(t, user.NewPatient{
			Name: "  Rose ", Email: "ROSE@example.com", Password: pwd, PasswordConfirm: pwd,
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		require.NotNil(t, resp.User)
		assert.Equal(t, "Rose", resp.User.Name)
		assert.Equal(t, "rose@example.com", resp.User.Email)
		assert.Equal(t, user.RolePatient, resp.User.Role)
		assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), resp.User.PatientCode)
	})

	t.Run("caretaker", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/caretakers", "", marchallObj(t, user.NewCaretaker{
			Name: "Anna", Email: "anna@example.com", Password: pwd, PasswordConfirm: pwd, PatientCode: "ab12cd",
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		require.NotNil(t, resp.User)
		assert.Equal(t, user.RoleCaretaker, resp.User.Role)
		assert.Equal(t, app.patient.ID, resp.User.PatientID)
		assert.Empty(t, resp.User.PatientCode)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name: "unknown patient code", method: http.MethodPost, path: "/v1/users/caretakers",
			body: marchallObj(t, user.NewCaretaker{
				Name: "Bob", Email: "bob@example.com", Password: pwd, PasswordConfirm: pwd, PatientCode: "ZZ99ZZ",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"patient_code": user.ErrUnknownPatientCode.Error()}),
		},
		{
			name: "email taken", method: http.MethodPost, path: "/v1/users/patients",
			body: marchallObj(t, user.NewPatient{
				Name: "Other", Email: "tom@example.com", Password: pwd, PasswordConfirm: pwd,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/v1/users/patients",
			body: marchallObj(t, user.NewPatient{
				Name: "Weak", Email: "weak@example.com", Password: "12345678", PasswordConfirm: "12345678",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
	})
}

func Test_userApi_login(t *testing.T) {
	app := setup(t, nil)
	testutil.CreateUser(t, app.usrRepo, "Gone", "gone@example.com", pwd, user.RolePatient, false)

	login := func(email, password string) []byte {
		return marchallObj(t, LoginRequest{Email: email, Password: password})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/users/login", body: login("", ""),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/users/login", body: login("nobody@example.com", pwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("tom@example.com", "nope"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("gone@example.com", pwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/login", "", login(" TOM@example.com ", pwd))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		require.NotNil(t, resp.User)
		assert.Equal(t, app.caretaker.ID, resp.User.ID)
		assert.False(t, resp.User.LastLogin.IsZero())

		rec = app.do(http.MethodGet, "/v1/users/me", resp.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		var me user.User
		unmarshal(t, rec, &me)
		assert.Equal(t, app.caretaker.ID, me.ID)
	})
}

func Test_userApi_me(t *testing.T) {
	app := setup(t, nil)
	patientToken := getToken(t, app.patient, app.conf)
	caretakerToken := getToken(t, app.caretaker, app.conf)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "bad token", path: "/v1/users/me", token: "not.a.token",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "patient has no linked patient", path: "/v1/users/me/patient", token: patientToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "email taken", method: http.MethodPut, path: "/v1/users/me", token: patientToken,
			body:     marchallObj(t, user.UpdateUser{Email: "tom@example.com"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	})

	t.Run("linked patient", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users/me/patient", caretakerToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var patient user.User
		unmarshal(t, rec, &patient)
		assert.Equal(t, app.patient.ID, patient.ID)
		assert.Equal(t, "AB12CD", patient.PatientCode)
	})

	t.Run("update", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/v1/users/me", patientToken, marchallObj(t, user.UpdateUser{Name: "Maggie"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Maggie", usr.Name)
		assert.Equal(t, "margaret@example.com", usr.Email)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost := testutil.CreateUser(t, app.usrRepo, "Ghost", "ghost@example.com", pwd, user.RolePatient, true)
		token := getToken(t, ghost, app.conf)
		require.NoError(t, app.usrRepo.DeleteUsersByID(context.Background(), []string{ghost.ID}))

		rec := app.do(http.MethodGet, "/v1/users/me", token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})}, rec)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t, nil)

	t.Run("success", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/token-refresh", getToken(t, app.patient, app.conf))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Nil(t, resp.User)
	})

	t.Run("refresh expired", func(t *testing.T) {
		origIat := time.Now().Add(-app.conf.Server.JWTRefreshExpirationDelta - time.Hour).Unix()
		token, err := GenerateToken(GetUserClaims(app.patient, app.conf, origIat), app.conf)
		require.NoError(t, err)

		rec := app.do(http.MethodPost, "/v1/users/token-refresh", token)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})}, rec)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t, nil)
	success := marchallObj(t, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	runHTTPTests(t, app, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/users/password-reset",
			body:     marchallObj(t, PasswordResetRequest{Email: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name: "unknown email does not leak", method: http.MethodPost, path: "/v1/users/password-reset",
			body: marchallObj(t, PasswordResetRequest{Email: "nobody@example.com"}), wantCode: http.StatusOK, wantData: success,
		},
	})
	assert.Empty(t, app.mailSvc.SentMessages())

	rec := app.do(http.MethodPost, "/v1/users/password-reset", "", marchallObj(t, PasswordResetRequest{Email: "margaret@example.com"}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: success}, rec)
	require.Len(t, app.mailSvc.SentMessages(), 1)

	token, err := user.MakeToken(app.patient, app.conf)
	require.NoError(t, err)
	newPwd := "Tul1ps&Daisies"

	runHTTPTests(t, app, []httpTest{
		{
			name: "bad uid", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body: marchallObj(t, user.ResetUserPassword{
				Token: token, UID: "!!", Password: newPwd, PasswordConfirm: newPwd,
			}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "confirm", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body: marchallObj(t, user.ResetUserPassword{
				Token: token, UID: user.EncodeUID(app.patient), Password: newPwd, PasswordConfirm: newPwd,
			}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	})

	rec = app.do(http.MethodPost, "/v1/users/login", "", marchallObj(t, LoginRequest{Email: "margaret@example.com", Password: newPwd}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
