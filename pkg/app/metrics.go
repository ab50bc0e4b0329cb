package app

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"messengerService/pkg/api"
)

type metrics struct {
	registry            *prometheus.Registry
	messagesSent        *prometheus.CounterVec
	conversationsOpened prometheus.Counter
	subscriptions       *prometheus.GaugeVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		registry: registry,
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "Send attempts by outcome.",
		}, []string{"outcome"}),
		conversationsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_conversations_opened_total",
			Help: "Successful get-or-create calls.",
		}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "messenger_live_subscriptions",
			Help: "Live queries currently open.",
		}, []string{"kind"}),
	}
	registry.MustRegister(m.messagesSent, m.conversationsOpened, m.subscriptions)
	return m
}

func (s *Server) Metrics() http.HandlerFunc {
	handler := promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})
	return handler.ServeHTTP
}

// instrumentedChat counts chat operations on their way to the service.
type instrumentedChat struct {
	next    api.ChatService
	metrics *metrics
}

func instrument(next api.ChatService, m *metrics) api.ChatService {
	return &instrumentedChat{next: next, metrics: m}
}

func (i *instrumentedChat) GetOrCreate(ctx context.Context, session *api.Session, otherUserId string, other api.ParticipantSnapshot) (string, error) {
	conversationId, err := i.next.GetOrCreate(ctx, session, otherUserId, other)
	if err == nil {
		i.metrics.conversationsOpened.Inc()
	}
	return conversationId, err
}

func (i *instrumentedChat) GetConversation(ctx context.Context, session *api.Session, conversationId string) (api.Conversation, error) {
	return i.next.GetConversation(ctx, session, conversationId)
}

func (i *instrumentedChat) ListForUser(ctx context.Context, userId string, onChange func([]api.Conversation)) (*api.Subscription, error) {
	subscription, err := i.next.ListForUser(ctx, userId, onChange)
	i.track("conversations", subscription)
	return subscription, err
}

func (i *instrumentedChat) Send(ctx context.Context, session *api.Session, conversationId string, message api.NewMessage) (string, error) {
	messageId, err := i.next.Send(ctx, session, conversationId, message)
	i.metrics.messagesSent.WithLabelValues(outcome(err)).Inc()
	return messageId, err
}

func (i *instrumentedChat) SubscribeMessages(ctx context.Context, session *api.Session, conversationId string, onChange func([]api.Message)) (*api.Subscription, error) {
	subscription, err := i.next.SubscribeMessages(ctx, session, conversationId, onChange)
	i.track("messages", subscription)
	return subscription, err
}

func (i *instrumentedChat) track(kind string, subscription *api.Subscription) {
	if subscription == nil {
		return
	}
	gauge := i.metrics.subscriptions.WithLabelValues(kind)
	gauge.Inc()
	go func() {
		<-subscription.Done()
		gauge.Dec()
	}()
}

func outcome(err error) string {
	var partial *api.PartialSendError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &partial):
		return "partial"
	default:
		return "failed"
	}
}
