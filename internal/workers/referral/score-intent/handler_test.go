package scoreintent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"referral-workers/internal/common/config"
	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/engine/trigger"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

// ==========================
// Mocks and helpers
// ==========================

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) SubmitAsync(req trigger.Request) {
	m.Called(req)
}

func createMockJob(t *testing.T, key int64, variables map[string]interface{}) entities.Job {
	t.Helper()
	raw, err := json.Marshal(variables)
	require.NoError(t, err)
	return entities.Job{
		ActivatedJob: &pb.ActivatedJob{
			Key:                key,
			Type:               TaskType,
			ProcessInstanceKey: 2251799813685249,
			BpmnProcessId:      "buyer-onboarding",
			ElementId:          "score-intent",
			Retries:            3,
			Variables:          string(raw),
		},
	}
}

func newTestHandler(t *testing.T, cfg *Config, store recordstore.Store, sub MatchSubmitter) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: cfg,
		Store:        store,
		Submitter:    sub,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

// ==========================
// Config
// ==========================

func TestConfig_FromAppConfig(t *testing.T) {
	app := &config.Config{
		Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: false, MaxJobsActive: 3, Timeout: 2000},
		},
		Referral: config.ReferralConfig{AutoTriggerOnScore: true},
	}

	cfg := createConfigFromAppConfig(app, nil)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.MaxJobsActive)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.True(t, cfg.AutoTrigger)
	assert.True(t, cfg.PersistScore)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())

	_, err := NewHandler(HandlerOptions{CustomConfig: &Config{MaxJobsActive: 1}})
	assert.Error(t, err)
}

// ==========================
// Input parsing
// ==========================

func TestParseInput(t *testing.T) {
	h := newTestHandler(t, DefaultConfig(), nil, nil)

	tests := []struct {
		name     string
		vars     map[string]interface{}
		wantErr  bool
		wantFlow string
	}{
		{
			name:     "defaults to backfill",
			vars:     map[string]interface{}{"buyerId": "buyer-1", "buyerState": "tx", "orderType": "Half"},
			wantFlow: FlowBackfill,
		},
		{
			name:     "upgrade flow",
			vars:     map[string]interface{}{"buyerId": "buyer-1", "flow": "upgrade", "processStarter": "web"},
			wantFlow: FlowUpgrade,
		},
		{name: "missing buyer", vars: map[string]interface{}{"buyerState": "TX"}, wantErr: true},
		{name: "unknown flow", vars: map[string]interface{}{"buyerId": "b", "flow": "import"}, wantErr: true},
		{name: "bad state", vars: map[string]interface{}{"buyerId": "b", "buyerState": "Texas"}, wantErr: true},
		{name: "wrong type", vars: map[string]interface{}{"buyerId": 42}, wantErr: true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(t, int64(i+1), tt.vars))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlow, input.Flow)
		})
	}
}

// ==========================
// Execute
// ==========================

func TestExecute_Scores(t *testing.T) {
	h := newTestHandler(t, DefaultConfig(), nil, nil)

	tests := []struct {
		name      string
		input     Input
		wantScore int
		wantClass string
	}{
		{
			name:      "upgrade whole top budget with notes",
			input:     Input{BuyerID: "b", Flow: FlowUpgrade, OrderType: "Whole", BudgetRange: "$2000+", Notes: "Looking for grass-fed beef for a family of six"},
			wantScore: 100,
			wantClass: "High",
		},
		{
			name:      "backfill half",
			input:     Input{BuyerID: "b", Flow: FlowBackfill, OrderType: "Half", BudgetRange: "$500 - $1000"},
			wantScore: 40,
			wantClass: "Medium",
		},
		{
			name:      "backfill with nothing",
			input:     Input{BuyerID: "b", Flow: FlowBackfill, OrderType: "None"},
			wantScore: 10,
			wantClass: "Low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Execute(context.Background(), &tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, out.IntentScore)
			assert.Equal(t, tt.wantClass, out.IntentClassification)
			assert.False(t, out.MatchSubmitted)
		})
	}
}

func TestExecute_PersistsScoreOnBuyer(t *testing.T) {
	store := recordstore.NewMemoryStore()
	_, err := store.Put(context.Background(), models.TableBuyers, "buyer-1", map[string]interface{}{
		"name":  "Dana Ortiz",
		"state": "TX",
	})
	require.NoError(t, err)

	h := newTestHandler(t, DefaultConfig(), store, nil)
	out, err := h.Execute(context.Background(), &Input{BuyerID: "buyer-1", Flow: FlowBackfill, OrderType: "Whole", BudgetRange: "$2000+"})
	require.NoError(t, err)
	assert.True(t, out.ScorePersisted)

	rec, err := store.Get(context.Background(), models.TableBuyers, "buyer-1")
	require.NoError(t, err)
	buyer, err := models.DecodeBuyer(rec.ID, rec.Fields)
	require.NoError(t, err)
	assert.Equal(t, 65, buyer.IntentScore)
	assert.Equal(t, "High", buyer.IntentClassification)
	assert.Equal(t, "Dana Ortiz", buyer.Name)
	assert.Equal(t, "2026-03-01T12:00:00Z", buyer.UpdatedAt)
}

func TestExecute_UnknownBuyerIsNotAnError(t *testing.T) {
	h := newTestHandler(t, DefaultConfig(), recordstore.NewMemoryStore(), nil)

	out, err := h.Execute(context.Background(), &Input{BuyerID: "ghost", Flow: FlowBackfill})
	require.NoError(t, err)
	assert.False(t, out.ScorePersisted)
	assert.Equal(t, 10, out.IntentScore)
}

func TestExecute_AutoTriggerSubmitsMatch(t *testing.T) {
	sub := new(MockSubmitter)
	sub.On("SubmitAsync", mock.MatchedBy(func(req trigger.Request) bool {
		return req.BuyerID == "buyer-9" && req.BuyerState == "TX" && req.IntentScore == 85 && req.IntentClassification == "High"
	})).Once()

	cfg := DefaultConfig()
	cfg.AutoTrigger = true
	cfg.PersistScore = false
	h := newTestHandler(t, cfg, nil, sub)

	out, err := h.Execute(context.Background(), &Input{
		BuyerID:     "buyer-9",
		BuyerState:  " tx ",
		Flow:        FlowUpgrade,
		OrderType:   "Whole",
		BudgetRange: "$2000+",
	})
	require.NoError(t, err)
	assert.True(t, out.MatchSubmitted)
	sub.AssertExpectations(t)
}

func TestExecute_AutoTriggerNeedsState(t *testing.T) {
	sub := new(MockSubmitter)
	cfg := DefaultConfig()
	cfg.AutoTrigger = true
	h := newTestHandler(t, cfg, nil, sub)

	out, err := h.Execute(context.Background(), &Input{BuyerID: "buyer-9", Flow: FlowBackfill})
	require.NoError(t, err)
	assert.False(t, out.MatchSubmitted)
	sub.AssertNotCalled(t, "SubmitAsync", mock.Anything)
}
