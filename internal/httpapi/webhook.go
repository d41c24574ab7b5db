package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"togglbot/internal/logging"
)

// eventTimeout bounds the background work for one inbound message.
const eventTimeout = 2 * time.Minute

// handleWebhook verifies the LINE signature, acknowledges at once and
// handles each text message from a user in the background.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(s.cfg.LineChannelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			writeError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid webhook body")
		return
	}

	reqID := middleware.GetReqID(r.Context())
	for _, event := range cb.Events {
		e, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		msg, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}
		src, ok := e.Source.(webhook.UserSource)
		if !ok || src.UserId == "" {
			continue
		}

		s.inflight.Add(1)
		go s.processMessage(context.WithoutCancel(r.Context()), reqID, src.UserId, msg.Text, e.ReplyToken)
	}

	writeText(w, http.StatusOK, "OK")
}

func (s *Server) processMessage(parent context.Context, reqID, userID, text, replyToken string) {
	defer s.inflight.Done()

	log := logging.With().Str("user_id", userID).Str("request_id", reqID).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("webhook event panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(parent, eventTimeout)
	defer cancel()

	reply := s.deps.Dispatcher.Handle(ctx, userID, text)
	if err := s.deps.Replier.Reply(ctx, replyToken, reply); err != nil {
		log.Error().Err(err).Msg("send reply")
	}
}
