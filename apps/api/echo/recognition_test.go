package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core/face"
	"github.com/lucidiacare/lucidia/core/recognition"
)

const pixel = "data:image/png;base64,iVBORw0KGgo="

type fakeRecognizer struct {
	answer string
	err    error
}

func (r *fakeRecognizer) Identify(_ context.Context, _ []byte, _ string, _ []recognition.Candidate) (string, error) {
	return r.answer, r.err
}

func Test_recognitionApi(t *testing.T) {
	rec := new(fakeRecognizer)
	app := setup(t, rec)
	patientToken := getToken(t, app.patient, app.conf)

	sarah, err := app.faceSvc.Create(context.Background(), app.patient.ID, face.NewFace{Name: "Sarah", Relation: "daughter"})
	require.NoError(t, err)

	identify := func() recognition.Result {
		resp := app.do(http.MethodPost, "/v1/recognition/identify", patientToken, marchallObj(t, recognition.CaptureRequest{Image: pixel}))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		var res recognition.Result
		unmarshal(t, resp, &res)
		return res
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "caretaker cannot identify", method: http.MethodPost, path: "/v1/recognition/identify",
			token: getToken(t, app.caretaker, app.conf), body: marchallObj(t, recognition.CaptureRequest{Image: pixel}),
			wantCode: http.StatusForbidden,
		},
		{
			name: "image required", method: http.MethodPost, path: "/v1/recognition/identify", token: patientToken,
			body:     marchallObj(t, recognition.CaptureRequest{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"image": "this field is required"}),
		},
		{
			name: "not a data URL", method: http.MethodPost, path: "/v1/recognition/identify", token: patientToken,
			body:     marchallObj(t, recognition.CaptureRequest{Image: "https://example.com/me.jpg"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"image": recognition.ErrInvalidImage.Error()}),
		},
	})

	t.Run("recognized speaks once", func(t *testing.T) {
		rec.answer = sarah.ID
		res := identify()
		assert.Equal(t, recognition.StatusRecognized, res.Status)
		require.NotNil(t, res.Face)
		assert.Equal(t, sarah.ID, res.Face.ID)
		assert.Equal(t, "That is Sarah, your daughter. They are so happy to see you.", res.Speech)

		res = identify()
		assert.Equal(t, recognition.StatusRecognized, res.Status)
		assert.Empty(t, res.Speech)
	})

	t.Run("reset re-arms speech", func(t *testing.T) {
		resp := app.do(http.MethodPost, "/v1/recognition/reset", patientToken)
		require.Equal(t, http.StatusNoContent, resp.Code)
		assert.NotEmpty(t, identify().Speech)
	})

	t.Run("recognizer failure", func(t *testing.T) {
		rec.answer, rec.err = "", errors.New("quota exceeded")
		defer func() { rec.err = nil }()
		assert.Equal(t, recognition.StatusError, identify().Status)
	})

	t.Run("remember", func(t *testing.T) {
		resp := app.do(http.MethodPost, "/v1/recognition/remember", patientToken, marchallObj(t, recognition.CaptureRequest{Image: pixel}))
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
		var res recognition.Result
		unmarshal(t, resp, &res)
		assert.Equal(t, recognition.StatusSaved, res.Status)
		require.NotNil(t, res.Face)
		assert.Equal(t, pixel, res.Face.ImageURL)

		faces, err := app.faceSvc.List(context.Background(), app.patient.ID)
		require.NoError(t, err)
		assert.Len(t, faces, 2)
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(app.metrics.Recognitions.WithLabelValues(recognition.StatusRecognized)))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.Recognitions.WithLabelValues(recognition.StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.Recognitions.WithLabelValues(recognition.StatusSaved)))
}

func Test_recognitionApi_unavailable(t *testing.T) {
	app := setup(t, nil)
	resp := app.do(http.MethodPost, "/v1/recognition/identify", getToken(t, app.patient, app.conf),
		marchallObj(t, recognition.CaptureRequest{Image: pixel}))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusServiceUnavailable,
		wantData: marchallObj(t, httpErr{Error: recognition.ErrUnavailable.Error()}),
	}, resp)
}
