package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/medassist/internal/adapter/llm"
	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/observability"
	"github.com/xiaot623/gogo/medassist/internal/publisher"
	"github.com/xiaot623/gogo/medassist/internal/resolver"
)

func chestPainRequest() domain.TriageRequest {
	hr, spo2, pain := 112, 93, 8
	return domain.TriageRequest{
		PatientInfo: domain.PatientInfo{Name: "Li Wei", Age: 58, Gender: "male", Allergies: []string{"penicillin"}},
		VitalSigns:  domain.VitalSigns{HeartRate: &hr, OxygenSaturation: &spo2},
		SymptomInfo: domain.SymptomInfo{ChiefComplaint: "Chest pain radiating to the left arm", PainLevel: &pain, SymptomDuration: "30 minutes"},
	}
}

func (e *testEnv) triage(t *testing.T, sink *recordingSink, userID string, req domain.TriageRequest) error {
	t.Helper()
	stream := publisher.New(e.metrics).Open(sink)
	return e.svc.AnalyzeTriage(context.Background(), userID, req, stream)
}

func triageResult(t *testing.T, sink *recordingSink) domain.TriageResult {
	t.Helper()
	frame, ok := sink.find(domain.FrameAnalysisResult)
	require.True(t, ok, "no analysis_result frame")
	var result domain.TriageResult
	require.NoError(t, json.Unmarshal(frame.Data, &result))
	return result
}

func TestAnalyzeTriageStreamsAndPersists(t *testing.T) {
	client := &scriptedClient{chunks: reply(
		"Urgency level: critical, possible acute coronary syndrome.\n",
		"1. Keep the patient at rest\n2. Record a 12-lead ECG\n",
		"- Prepare for transfer to the cath lab\n",
	)}
	env := newTestEnv(t, client, nil)

	sink := &recordingSink{}
	require.NoError(t, env.triage(t, sink, "u1", chestPainRequest()))

	assert.Equal(t, []domain.FrameType{
		domain.FrameAnalysisStart,
		domain.FrameAnswerStart,
		domain.FrameAnswer,
		domain.FrameUsage,
		domain.FrameAnalysisResult,
		domain.FrameDone,
	}, sink.types())

	require.Equal(t, 1, client.calls())
	req := client.requests[0]
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.3, *req.Temperature)
	prompt := req.Messages[len(req.Messages)-1].Content
	assert.Contains(t, prompt, "Chief complaint: Chest pain radiating to the left arm")
	assert.Contains(t, prompt, "Heart rate: 112 bpm")
	assert.Contains(t, prompt, "Blood pressure: unknown/unknown mmHg")
	assert.Contains(t, prompt, "Allergies: penicillin")

	result := triageResult(t, sink)
	assert.Equal(t, domain.UrgencyCritical, result.Analysis.UrgencyLevel)
	assert.Equal(t, 5, result.Analysis.PriorityScore)
	assert.Equal(t, "immediate", result.Analysis.EstimatedWaitTime)
	assert.Equal(t, "Cardiology", result.Analysis.DepartmentRecommendation)
	assert.Equal(t, []string{"Keep the patient at rest", "Record a 12-lead ECG", "Prepare for transfer to the cath lab"}, result.Analysis.RecommendedActions)

	done, _ := sink.find(domain.FrameDone)
	assert.Equal(t, result.Analysis.AdditionalNotes, done.Content)

	record, err := env.svc.GetTriageRecord(context.Background(), "u1", result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "Li Wei", record.Request.PatientInfo.Name)
	assert.Equal(t, result.Analysis, record.Analysis)
	assert.False(t, record.Degraded)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.TurnsTotal.WithLabelValues(resolver.ModuleTriage, observability.OutcomeDone)))
}

func TestAnalyzeTriageUpstreamFailureDegrades(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{err: &llm.StatusError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}}, nil)

	sink := &recordingSink{}
	require.NoError(t, env.triage(t, sink, "u1", chestPainRequest()))

	types := sink.types()
	assert.Equal(t, domain.FrameAnalysisStart, types[0])
	assert.Contains(t, types, domain.FrameError)
	assert.Equal(t, []domain.FrameType{domain.FrameAnalysisResult, domain.FrameDone}, types[len(types)-2:])

	result := triageResult(t, sink)
	assert.NotEmpty(t, result.Analysis.AdditionalNotes)
	assert.NotEmpty(t, result.Analysis.RecommendedActions)

	record, err := env.svc.GetTriageRecord(context.Background(), "u1", result.RecordID)
	require.NoError(t, err)
	assert.True(t, record.Degraded)
}

func TestAnalyzeTriageConfigStoreUnavailable(t *testing.T) {
	client := &scriptedClient{chunks: reply("real upstream answer")}
	env := newTestEnv(t, client, failingSource{})

	sink := &recordingSink{}
	require.NoError(t, env.triage(t, sink, "u1", chestPainRequest()))

	assert.Equal(t, 0, client.calls())
	types := sink.types()
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, domain.FrameAnalysisStart, types[0])
	assert.Equal(t, domain.FrameError, types[1])
	errFrame, _ := sink.find(domain.FrameError)
	assert.Equal(t, domain.ErrorCodeConfig, errFrame.Code)
	assert.Equal(t, domain.FrameDone, types[len(types)-1])

	result := triageResult(t, sink)
	assert.NotContains(t, result.Analysis.AdditionalNotes, "real upstream answer")
}

func TestAnalyzeTriageRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{chunks: reply("unused")}, nil)

	req := chestPainRequest()
	req.SymptomInfo.ChiefComplaint = "   "
	sink := &recordingSink{}
	err := env.triage(t, sink, "u1", req)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Empty(t, sink.frames)

	req = chestPainRequest()
	req.PatientInfo.Name = ""
	err = env.triage(t, sink, "u1", req)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, 0, env.client.calls())
}

func TestTriageRecordsAreScopedToUser(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{chunks: reply("Urgent review needed.")}, nil)

	sink := &recordingSink{}
	require.NoError(t, env.triage(t, sink, "u1", chestPainRequest()))
	first := triageResult(t, sink).RecordID
	sink = &recordingSink{}
	require.NoError(t, env.triage(t, sink, "u1", chestPainRequest()))
	second := triageResult(t, sink).RecordID
	require.NoError(t, env.triage(t, &recordingSink{}, "u2", chestPainRequest()))

	records, err := env.svc.ListTriageRecords(context.Background(), "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second, records[0].RecordID)
	assert.Equal(t, first, records[1].RecordID)
	assert.Equal(t, domain.UrgencyUrgent, records[0].Analysis.UrgencyLevel)

	page, err := env.svc.ListTriageRecords(context.Background(), "u1", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first, page[0].RecordID)

	none, err := env.svc.ListTriageRecords(context.Background(), "nobody", 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = env.svc.GetTriageRecord(context.Background(), "u2", first)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.GetTriageRecord(context.Background(), "u1", "triage_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseTriageAnalysis(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		complaint  string
		level      domain.UrgencyLevel
		wait       string
		department string
		actions    []string
	}{
		{
			name:       "critical",
			content:    "This is CRITICAL, act now.\n1. Start CPR\n2) Attach the AED",
			complaint:  "collapsed, not breathing",
			level:      domain.UrgencyCritical,
			wait:       "immediate",
			department: "Respiratory medicine",
			actions:    []string{"Start CPR", "Attach the AED"},
		},
		{
			name:       "semi-urgent is not urgent",
			content:    "Triage level: Semi-urgent.\n- Observe\n- Recheck vitals in 30 minutes",
			complaint:  "Abdominal pain",
			level:      domain.UrgencySemiUrgent,
			wait:       "1-2 hours",
			department: "Gastroenterology",
			actions:    []string{"Observe", "Recheck vitals in 30 minutes"},
		},
		{
			name:       "non-urgent",
			content:    "Level: non-urgent. Rest at home.",
			complaint:  "mild sore throat",
			level:      domain.UrgencyNonUrgent,
			wait:       "2-4 hours",
			department: "Emergency department",
			actions:    []string{"Arrange medical care according to the triage level."},
		},
		{
			name:       "chinese keywords",
			content:    "分诊级别：急诊，尽快处理。\n1、测量血压\n2、建立静脉通道",
			complaint:  "外伤后左腿骨折",
			level:      domain.UrgencyUrgent,
			wait:       "15-30 minutes",
			department: "Surgery",
			actions:    []string{"测量血压", "建立静脉通道"},
		},
		{
			name:       "chinese non-urgent",
			content:    "非紧急，可等待门诊。",
			complaint:  "头痛两天",
			level:      domain.UrgencyNonUrgent,
			wait:       "2-4 hours",
			department: "Neurology",
			actions:    []string{"Arrange medical care according to the triage level."},
		},
		{
			name:       "decimals are not actions",
			content:    "Give 2.5 mg\n1. Monitor",
			complaint:  "palpitations",
			level:      domain.UrgencySemiUrgent,
			wait:       "1-2 hours",
			department: "Cardiology",
			actions:    []string{"Monitor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTriageAnalysis(tt.content, tt.complaint)
			assert.Equal(t, tt.level, got.UrgencyLevel)
			assert.Equal(t, levelPriority[tt.level], got.PriorityScore)
			assert.Equal(t, tt.wait, got.EstimatedWaitTime)
			assert.Equal(t, tt.department, got.DepartmentRecommendation)
			assert.Equal(t, tt.actions, got.RecommendedActions)
			assert.Equal(t, tt.content, got.AdditionalNotes)
		})
	}
}

func TestParseTriageAnalysisCapsActions(t *testing.T) {
	got := parseTriageAnalysis("1. a\n2. b\n3. c\n4. d\n5. e\n6. f\n- g", "cough")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got.RecommendedActions)
}
