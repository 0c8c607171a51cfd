// Package notify fans case events out to doctors over WebSocket and mobile
// push. Delivery is best-effort: every failure is logged and swallowed so
// notification problems never affect case state.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/secondopinion/secondopinion/internal/domain/cases"
	"github.com/secondopinion/secondopinion/internal/platform/auth"
	"github.com/secondopinion/secondopinion/internal/platform/push"
	"github.com/secondopinion/secondopinion/internal/platform/ws"
)

// Broadcaster publishes an event to all clients on a topic.
type Broadcaster interface {
	Broadcast(topic string, event ws.Event)
}

// TokenDirectory resolves the push tokens registered for a role.
type TokenDirectory interface {
	PushTokensByRole(ctx context.Context, role string) ([]string, error)
}

// DoctorNotifier implements cases.Notifier by broadcasting on the doctor
// topic and pushing to every registered doctor device.
type DoctorNotifier struct {
	hub    Broadcaster
	push   push.Sender
	tokens TokenDirectory
	logger zerolog.Logger
}

func NewDoctorNotifier(hub Broadcaster, sender push.Sender, tokens TokenDirectory, logger zerolog.Logger) *DoctorNotifier {
	return &DoctorNotifier{hub: hub, push: sender, tokens: tokens, logger: logger}
}

func (n *DoctorNotifier) CaseReady(ctx context.Context, alert cases.CaseAlert) {
	event := ws.NewCaseEvent(alert.CaseID.String(), alert.PatientName, string(alert.RiskLevel), alert.Summary)
	n.hub.Broadcast(auth.RoleDoctor, event)

	tokens, err := n.tokens.PushTokensByRole(ctx, auth.RoleDoctor)
	if err != nil {
		n.logger.Error().Err(err).Msg("notify: loading doctor push tokens failed")
		return
	}
	if len(tokens) == 0 {
		return
	}

	title := "New case for review"
	body := alert.PatientName + " submitted a case (" + string(alert.RiskLevel) + " risk)"
	data := map[string]string{
		"caseId":    alert.CaseID.String(),
		"riskLevel": string(alert.RiskLevel),
	}
	if err := n.push.SendToTokens(ctx, tokens, title, body, data); err != nil {
		n.logger.Error().Err(err).Str("case_id", alert.CaseID.String()).Msg("notify: push delivery failed")
	}
}

// Recorder captures alerts for tests.
type Recorder struct {
	Alerts []cases.CaseAlert
}

func (r *Recorder) CaseReady(_ context.Context, alert cases.CaseAlert) {
	r.Alerts = append(r.Alerts, alert)
}
