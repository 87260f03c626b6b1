package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"referral-workers/internal/common/aws"
	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/http"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/models"
)

// ==========================
// Mocks
// ==========================

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.SendEmailOutput), args.Error(1)
}

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

type failingChannel struct{ name string }

func (f failingChannel) Name() string { return f.name }

func (f failingChannel) Send(context.Context, Intent) (string, error) {
	return "", errors.NewNotificationSendFailedError(f.name, fmt.Errorf("provider down"))
}

func newLeadIntent() Intent {
	return Intent{
		Kind:       KindNewLead,
		ReferralID: "ref-1",
		Summary:    "Jane Doe (TX, High) suggested to Lone Star Ranch",
		Fields: map[string]string{
			"buyerState":  "TX",
			"intentScore": "85",
		},
		SuggestedActions: []Action{ActionApprove, ActionReassign, ActionViewDetails, ActionReject},
		OccurredAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// ==========================
// Intent
// ==========================

func TestIntent_Text(t *testing.T) {
	text := newLeadIntent().Text()
	assert.Equal(t, "Jane Doe (TX, High) suggested to Lone Star Ranch\n\nbuyerState: TX\nintentScore: 85\nReferral: ref-1", text)
	assert.Equal(t, "New referral awaiting approval", newLeadIntent().Subject())
}

// ==========================
// Chat
// ==========================

func TestChatChannel_PostsCard(t *testing.T) {
	var got chatMessage
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer srv.Close()

	ch := NewChatChannel(http.NewClient(time.Second), srv.URL, "https://admin.example.com/referrals/")
	_, err := ch.Send(context.Background(), newLeadIntent())
	require.NoError(t, err)

	assert.Equal(t, "NewLead", got.Kind)
	assert.Equal(t, "ref-1", got.ReferralID)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "buyerState", got.Fields[0].Title)
	require.Len(t, got.Buttons, 4)
	assert.Equal(t, "Approve", got.Buttons[0].Text)
	assert.Equal(t, "https://admin.example.com/referrals/ref-1?action=approve", got.Buttons[0].URL)
	assert.Equal(t, "View details", got.Buttons[2].Text)
}

func TestChatChannel_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	ch := NewChatChannel(http.NewClient(time.Second), srv.URL, "")
	_, err := ch.Send(context.Background(), newLeadIntent())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotificationFailed))

	var status *http.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, nethttp.StatusBadGateway, status.StatusCode)
}

// ==========================
// Email / SMS
// ==========================

func TestEmailChannel(t *testing.T) {
	api := new(MockSES)
	api.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return awssdk.ToString(in.Source) == "referrals@example.com" &&
			len(in.Destination.ToAddresses) == 1 &&
			awssdk.ToString(in.Message.Subject.Data) == "New referral awaiting approval"
	})).Return(&ses.SendEmailOutput{MessageId: awssdk.String("ses-1")}, nil)

	ch := NewEmailChannel(aws.NewSESClientWithAPI(api, "referrals@example.com"), []string{"admin@example.com"})
	id, err := ch.Send(context.Background(), newLeadIntent())
	require.NoError(t, err)
	assert.Equal(t, "ses-1", id)
	api.AssertExpectations(t)
}

func TestEmailChannel_Failure(t *testing.T) {
	api := new(MockSES)
	api.On("SendEmail", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("throttled"))

	ch := NewEmailChannel(aws.NewSESClientWithAPI(api, "referrals@example.com"), []string{"admin@example.com"})
	_, err := ch.Send(context.Background(), newLeadIntent())
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotificationFailed))
}

func TestSMSChannel_OnlyLeadsAndCloses(t *testing.T) {
	api := new(MockSNS)
	api.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return awssdk.ToString(in.PhoneNumber) == "+15125550100"
	})).Return(&sns.PublishOutput{MessageId: awssdk.String("sns-1")}, nil).Once()

	ch := NewSMSChannel(aws.NewSNSClientWithAPI(api), []string{"+15125550100"})

	id, err := ch.Send(context.Background(), newLeadIntent())
	require.NoError(t, err)
	assert.Equal(t, "sns-1", id)

	approved := newLeadIntent()
	approved.Kind = KindApproved
	id, err = ch.Send(context.Background(), approved)
	require.NoError(t, err)
	assert.Empty(t, id)

	api.AssertExpectations(t)
}

// ==========================
// Multi
// ==========================

func TestMulti_PartialFailure(t *testing.T) {
	api := new(MockSES)
	api.On("SendEmail", mock.Anything, mock.Anything).Return(&ses.SendEmailOutput{MessageId: awssdk.String("ses-1")}, nil)
	email := NewEmailChannel(aws.NewSESClientWithAPI(api, "referrals@example.com"), []string{"admin@example.com"})

	m := NewMulti(logger.NewTestLogger(t), failingChannel{name: "chat"}, email)

	records := m.Deliver(context.Background(), newLeadIntent())
	require.Len(t, records, 2)
	assert.Equal(t, models.DeliveryFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "provider down")
	assert.Empty(t, records[0].SentAt)
	assert.Equal(t, models.DeliverySent, records[1].Status)
	assert.Equal(t, "ses-1", records[1].MessageID)
	assert.NotEmpty(t, records[1].SentAt)

	err := m.Dispatch(context.Background(), newLeadIntent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat: channel: chat, error: provider down")
}

func TestMulti_NoChannels(t *testing.T) {
	m := NewMulti(logger.NewNoOpLogger())
	assert.NoError(t, m.Dispatch(context.Background(), newLeadIntent()))
}

// ==========================
// Queue
// ==========================

type blockingDispatcher struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Intent
}

func (b *blockingDispatcher) Dispatch(_ context.Context, intent Intent) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, intent)
	return nil
}

func TestQueue_DeliversAndDrains(t *testing.T) {
	rec := &Recorder{}
	q := NewQueue(rec, 10, time.Second, logger.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Dispatch(context.Background(), newLeadIntent()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Len(t, rec.Intents(), 3)

	// after close intents are dropped, not panicking on a closed channel
	assert.NoError(t, q.Dispatch(context.Background(), newLeadIntent()))
	assert.Len(t, rec.Intents(), 3)
}

func TestQueue_DropsWhenFull(t *testing.T) {
	next := &blockingDispatcher{release: make(chan struct{})}
	q := NewQueue(next, 1, time.Second, logger.NewTestLogger(t))

	// first is picked up by the worker and blocks, second fills the buffer
	require.NoError(t, q.Dispatch(context.Background(), newLeadIntent()))
	require.Eventually(t, func() bool { return len(q.intents) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Dispatch(context.Background(), newLeadIntent()))
	// no room left
	require.NoError(t, q.Dispatch(context.Background(), newLeadIntent()))

	close(next.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	next.mu.Lock()
	defer next.mu.Unlock()
	assert.Len(t, next.got, 2)
}

func TestQueue_SwallowsDispatchErrors(t *testing.T) {
	rec := &Recorder{Err: fmt.Errorf("boom")}
	q := NewQueue(rec, 2, time.Second, logger.NewTestLogger(t))

	assert.NoError(t, q.Dispatch(context.Background(), newLeadIntent()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, []Kind{KindNewLead}, rec.Kinds())
}
