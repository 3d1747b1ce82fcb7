package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/services/batch"
	"github.com/upb/hsn-classifier/services/prediction"
	"github.com/upb/hsn-classifier/utils"
)

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict/bulk", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newBatchHandler(predictor *MockPredictionService) *BatchHandler {
	runner := batch.NewRunner(predictor, time.Second, zap.NewNop())
	return NewBatchHandler(runner, 1<<20, zap.NewNop())
}

func TestHandleBulkPredict(t *testing.T) {
	t.Run("returns the export as an attachment", func(t *testing.T) {
		predictor := new(MockPredictionService)
		predictor.On("Predict", mock.Anything, models.PredictionChannelBatch,
			models.NewClassificationRequest("Wireless Mouse", "optical", "India")).
			Return(mouseResult())
		predictor.On("Predict", mock.Anything, models.PredictionChannelBatch,
			models.NewClassificationRequest("Mystery", "", "")).
			Return(prediction.Result{Record: models.SentinelRecord(models.HSNNotFound, "No HSN code found for the given description.")})

		csv := "product_name,description,region\nWireless Mouse,optical,India\nMystery,\n"
		w := httptest.NewRecorder()

		newBatchHandler(predictor).HandleBulkPredict(w, uploadRequest(t, BatchFormField, "products.csv", csv))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="hsn_predictions.csv"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t,
			"product_name,description,region,hsn_code,confidence_score,explanation\n"+
				"Wireless Mouse,optical,India,84716070,0.92,\"Input unit for automatic data processing machines, India tariff.\"\n"+
				"Mystery,,International,Not Found,N/A,No HSN code found for the given description.\n",
			w.Body.String())
		predictor.AssertExpectations(t)
	})

	t.Run("header only file gives header only export", func(t *testing.T) {
		w := httptest.NewRecorder()

		newBatchHandler(new(MockPredictionService)).HandleBulkPredict(w, uploadRequest(t, BatchFormField, "empty.csv", "product_name,description\n"))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "product_name,description,region,hsn_code,confidence_score,explanation\n", w.Body.String())
	})

	t.Run("malformed row is rejected with its line", func(t *testing.T) {
		predictor := new(MockPredictionService)
		w := httptest.NewRecorder()

		newBatchHandler(predictor).HandleBulkPredict(w, uploadRequest(t, BatchFormField, "bad.csv", "product_name,description\nLaptop,portable\nOnlyName\n"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, float64(3), response.Details["line"])
		predictor.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wrong extension", func(t *testing.T) {
		w := httptest.NewRecorder()

		newBatchHandler(new(MockPredictionService)).HandleBulkPredict(w, uploadRequest(t, BatchFormField, "products.xlsx", "x"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid file type")
	})

	t.Run("missing file field", func(t *testing.T) {
		w := httptest.NewRecorder()

		newBatchHandler(new(MockPredictionService)).HandleBulkPredict(w, uploadRequest(t, "file", "products.csv", "x"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "no file part")
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/predict/bulk", strings.NewReader("a,b"))
		req.Header.Set("Content-Type", "text/csv")
		w := httptest.NewRecorder()

		newBatchHandler(new(MockPredictionService)).HandleBulkPredict(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("upload over the limit", func(t *testing.T) {
		runner := batch.NewRunner(new(MockPredictionService), 0, zap.NewNop())
		handler := NewBatchHandler(runner, 256, zap.NewNop())
		w := httptest.NewRecorder()

		handler.HandleBulkPredict(w, uploadRequest(t, BatchFormField, "big.csv", strings.Repeat("a,b\n", 1000)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

// stubBatchService returns a fixed error
type stubBatchService struct{ err error }

func (s stubBatchService) Process(context.Context, io.Reader, io.Writer) ([]models.BatchRow, error) {
	return nil, s.err
}

func TestHandleBulkPredict_ServiceError(t *testing.T) {
	handler := NewBatchHandler(stubBatchService{err: services.WrapValidation("invalid CSV file", io.ErrUnexpectedEOF)}, 1<<20, zap.NewNop())
	w := httptest.NewRecorder()

	handler.HandleBulkPredict(w, uploadRequest(t, BatchFormField, "x.csv", "\"unterminated"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid CSV file")
}

func TestHandleSample(t *testing.T) {
	w := httptest.NewRecorder()

	NewBatchHandler(nil, 1, zap.NewNop()).HandleSample(w, httptest.NewRequest(http.MethodGet, "/api/v1/predict/sample", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="sample_products.csv"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "product_name,description,region\n"))

	requests, err := batch.ReadRequests(bytes.NewReader(SampleProducts()))
	require.NoError(t, err)
	assert.NotEmpty(t, requests)
}

// slowBatchService writes a fixed export after a delay
type slowBatchService struct{ delay time.Duration }

func (s slowBatchService) Process(ctx context.Context, _ io.Reader, out io.Writer) ([]models.BatchRow, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	_, err := io.WriteString(out, "product_name,description,region,hsn_code,confidence_score,explanation\n")
	return nil, err
}

func TestHandleBulkPredict_OutlivesServerWriteTimeout(t *testing.T) {
	handler := NewBatchHandler(slowBatchService{delay: 300 * time.Millisecond}, 1<<20, zap.NewNop())
	server := httptest.NewUnstartedServer(http.HandlerFunc(handler.HandleBulkPredict))
	server.Config.WriteTimeout = 100 * time.Millisecond
	server.Start()
	defer server.Close()

	upload := uploadRequest(t, BatchFormField, "products.csv", "product_name,description\nLaptop,portable\n")
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/predict/bulk", upload.Body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", upload.Header.Get("Content-Type"))

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "product_name,"))
}

func TestHandleBulkPredict_RecorderWithoutDeadlines(t *testing.T) {
	handler := NewBatchHandler(slowBatchService{}, 1<<20, zap.NewNop())
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		handler.HandleBulkPredict(w, uploadRequest(t, BatchFormField, "products.csv", "product_name,description\n"))
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
