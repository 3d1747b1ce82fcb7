package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/services/prediction"
	"github.com/upb/hsn-classifier/services/providers"
)

// MockPredictor is a mock implementation of Predictor
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest) prediction.Result {
	args := m.Called(ctx, channel, req)
	return args.Get(0).(prediction.Result)
}

// scriptedClassifier answers with a fixed raw reply per product name
type scriptedClassifier struct {
	replies map[string]string
	order   []string
}

func (s *scriptedClassifier) Name() string { return "openai" }

func (s *scriptedClassifier) Classify(ctx context.Context, req models.ClassificationRequest) (*providers.Reply, error) {
	s.order = append(s.order, req.ProductName)
	return providers.RawReply("openai", s.replies[req.ProductName]), nil
}

func newPipeline(t *testing.T, classifier providers.Classifier) *Runner {
	t.Helper()
	chain, err := providers.NewChain(classifier)
	require.NoError(t, err)
	svc := prediction.NewService(chain, prediction.NewNormalizer(zap.NewNop()), nil, zap.NewNop())
	return NewRunner(svc, 0, zap.NewNop())
}

func TestReadRequests(t *testing.T) {
	input := "product_name,description,region\n" +
		"Wireless Mouse,2.4GHz optical mouse,India\n" +
		"Cotton T-Shirt,\"Men's knitted, cotton\"\n" +
		"Laptop,14 inch notebook,International\n"

	reqs, err := ReadRequests(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	assert.Equal(t, models.ClassificationRequest{ProductName: "Wireless Mouse", Description: "2.4GHz optical mouse", Region: models.RegionIndia}, reqs[0])
	assert.Equal(t, "Men's knitted, cotton", reqs[1].Description)
	assert.Equal(t, models.RegionInternational, reqs[1].Region)
	assert.Equal(t, models.RegionInternational, reqs[2].Region)
}

func TestReadRequests_Empty(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty file", input: ""},
		{name: "header only", input: "product_name,description,region\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := ReadRequests(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Empty(t, reqs)
		})
	}
}

func TestReadRequests_MalformedRow(t *testing.T) {
	input := "product_name,description\n" +
		"Wireless Mouse,optical\n" +
		"Orphan\n" +
		"Laptop,notebook\n"

	reqs, err := ReadRequests(strings.NewReader(input))

	require.Error(t, err)
	assert.Nil(t, reqs)
	assert.True(t, services.IsMalformedBatchRowError(err))
	assert.True(t, errors.Is(err, services.ErrMalformedBatch))

	details := services.GetErrorDetails(err)
	assert.Equal(t, 3, details["line"])
	assert.Equal(t, 1, details["columns"])
}

func TestReadRequests_InvalidCSV(t *testing.T) {
	_, err := ReadRequests(strings.NewReader("product_name,description\n\"unterminated,desc\n"))

	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestRunner_Run_OrderAndIsolation(t *testing.T) {
	classifier := &scriptedClassifier{replies: map[string]string{
		"Wireless Mouse": `{"hsn_code":"84716070","confidence_score":0.92,"explanation":"Input unit.","similar_products":[{"name":"X","hsn":"84716060"}]}`,
		"Broken":         `{"hsn_code":"8471"`,
		"Cotton T-Shirt": `{"hsn_code":"610910","confidence_score":0.8,"explanation":"Knitted cotton.","similar_products":[]}`,
	}}
	runner := newPipeline(t, classifier)

	reqs := []models.ClassificationRequest{
		models.NewClassificationRequest("Wireless Mouse", "2.4GHz optical mouse", "India"),
		models.NewClassificationRequest("Broken", "bad reply", ""),
		models.NewClassificationRequest("Cotton T-Shirt", "knitted", ""),
	}

	rows := runner.Run(context.Background(), reqs)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Wireless Mouse", "Broken", "Cotton T-Shirt"}, classifier.order)

	for i, row := range rows {
		assert.Equal(t, i+1, row.Ordinal)
		assert.Equal(t, reqs[i], row.Request)
	}

	assert.Equal(t, "84716070", rows[0].Record.HSNCode)
	assert.Equal(t, prediction.ParseFailureRecord(), rows[1].Record)
	assert.Equal(t, "610910", rows[2].Record.HSNCode)
}

func TestRunner_Run_UsesBatchChannel(t *testing.T) {
	req := models.NewClassificationRequest("Mouse", "", "")
	predictor := &MockPredictor{}
	predictor.On("Predict", mock.Anything, models.PredictionChannelBatch, req).
		Return(prediction.Result{Record: models.SentinelRecord(models.HSNNotFound, "none")}).Twice()

	rows := NewRunner(predictor, time.Second, zap.NewNop()).Run(context.Background(), []models.ClassificationRequest{req, req})

	require.Len(t, rows, 2)
	predictor.AssertExpectations(t)
}

func TestRunner_Run_RowTimeout(t *testing.T) {
	req := models.NewClassificationRequest("Mouse", "", "")
	predictor := &MockPredictor{}
	predictor.On("Predict", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), models.PredictionChannelBatch, req).Return(prediction.Result{Record: models.SentinelRecord(models.HSNNotFound, "none")}).Once()

	NewRunner(predictor, 50*time.Millisecond, zap.NewNop()).Run(context.Background(), []models.ClassificationRequest{req})

	predictor.AssertExpectations(t)
}

func TestRunner_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	predictor := &MockPredictor{}
	reqs := []models.ClassificationRequest{
		models.NewClassificationRequest("A", "", ""),
		models.NewClassificationRequest("B", "", ""),
	}

	rows := NewRunner(predictor, 0, zap.NewNop()).Run(ctx, reqs)

	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, models.HSNError, row.Record.HSNCode)
		assert.Equal(t, CancelledExplanation, row.Record.Explanation)
	}
	predictor.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything, mock.Anything)
}

func TestWriteCSV(t *testing.T) {
	rows := []models.BatchRow{
		{
			Ordinal: 1,
			Request: models.NewClassificationRequest("Wireless Mouse", "2.4GHz optical mouse", "India"),
			Record: models.PredictionRecord{
				HSNCode:         "84716070",
				ConfidenceScore: models.Confidence(0.92),
				Explanation:     "Input unit, for India.",
				SimilarProducts: []models.SimilarProduct{{Name: "X", HSN: "84716060"}},
			},
		},
		{
			Ordinal: 2,
			Request: models.NewClassificationRequest("Broken", "", ""),
			Record:  prediction.ParseFailureRecord(),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, []string{"product_name", "description", "region", "hsn_code", "confidence_score", "explanation"}, lines[0])
	assert.Equal(t, []string{"Wireless Mouse", "2.4GHz optical mouse", "India", "84716070", "0.92", "Input unit, for India."}, lines[1])
	assert.Equal(t, []string{"Broken", "", "International", "Error", "N/A", prediction.ParseFailureExplanation}, lines[2])
}

func TestRunner_Process(t *testing.T) {
	classifier := &scriptedClassifier{replies: map[string]string{
		"Wireless Mouse": `{"hsn_code":"84716070","confidence_score":0.92,"explanation":"...","similar_products":[{"name":"X","hsn":"84716060"}]}`,
	}}
	runner := newPipeline(t, classifier)

	var out bytes.Buffer
	rows, err := runner.Process(context.Background(),
		strings.NewReader("product_name,description,region\nWireless Mouse,2.4GHz optical mouse,India\n"), &out)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t,
		"product_name,description,region,hsn_code,confidence_score,explanation\n"+
			"Wireless Mouse,2.4GHz optical mouse,India,84716070,0.92,...\n",
		out.String())
}

func TestRunner_Process_RejectsMalformedInput(t *testing.T) {
	classifier := &scriptedClassifier{replies: map[string]string{}}
	runner := newPipeline(t, classifier)

	var out bytes.Buffer
	rows, err := runner.Process(context.Background(), strings.NewReader("h1,h2\nonly-one\n"), &out)

	assert.True(t, services.IsMalformedBatchRowError(err))
	assert.Nil(t, rows)
	assert.Zero(t, out.Len())
	assert.Empty(t, classifier.order)
}
